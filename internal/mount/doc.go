// Package mount reads the live kernel mount table.
package mount
