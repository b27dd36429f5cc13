// Package volume decides which logical volume receives a new core image and
// writes the image onto it.
//
// Candidates go through an ordered predicate chain:
//
//  1. the name starts with "<package>_";
//  2. the suffix is not a reserved, non-versioned volume ("state", "swap");
//  3. the suffix parses as a semantic version;
//  4. the suffix is not the running version;
//  5. the mapped device of the volume is not the device mounted at "/".
//
// The first surviving candidate is renamed to the target version and reused.
// Without any candidate a new volume is created. The volume backing the
// running system can never be selected: predicates 4 and 5 exclude it
// independently of each other.
package volume
