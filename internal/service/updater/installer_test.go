package updater

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blang/semver"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/repository/state"
)

// recorder collects the calls made by every fake collaborator, in order.
type recorder struct {
	calls []string
	fail  map[string]error
}

func (r *recorder) call(name string) error {
	r.calls = append(r.calls, name)

	return r.fail[name]
}

type fakeFetcher struct{ *recorder }

func (f fakeFetcher) Fetch(_ context.Context, pkg system.Package, _ *system.Remote, _ semver.Version) error {
	return f.call("fetch " + pkg.Name)
}

func (f fakeFetcher) Remove(_ context.Context, pkg system.Package) {
	_ = f.call("remove " + pkg.Name)
}

type fakeSelector struct{ *recorder }

func (f fakeSelector) Select(_ context.Context, pkg system.Package, _, target semver.Version) (system.Volume, error) {
	if err := f.call("select"); err != nil {
		return system.Volume{}, err
	}

	return system.Volume{Name: pkg.VolumeName(target.String()), Group: pkg.Destination}, nil
}

type fakeWriter struct{ *recorder }

func (f fakeWriter) Write(context.Context, string, system.Volume) (int64, error) {
	return 42, f.call("write")
}

type fakeEntries struct{ *recorder }

func (f fakeEntries) ClearStale(context.Context, semver.Version) ([]string, error) {
	return []string{"clipos-0.9.0.efi"}, f.call("clear")
}

func (f fakeEntries) Publish(_ context.Context, _ string, target semver.Version) (string, error) {
	if err := f.call("publish"); err != nil {
		return "", err
	}

	return "/efi/clipos-" + target.String() + ".efi", nil
}

// journalSpy records the phase of every saved journal.
type journalSpy struct {
	*recorder
	repo *state.FileRepository[state.Journal]
}

func (j journalSpy) Load(ctx context.Context) (*state.Journal, error) { return j.repo.Load(ctx) }

func (j journalSpy) Save(ctx context.Context, record *state.Journal) error {
	if err := j.call("journal " + record.Phase); err != nil {
		return err
	}

	return j.repo.Save(ctx, record)
}

func (j journalSpy) Remove(ctx context.Context) error {
	_ = j.call("journal removed")

	return j.repo.Remove(ctx)
}

func testSystem() *system.System {
	return &system.System{
		OSName:   "clipos",
		Version:  semver.MustParse("1.0.0"),
		Core:     system.NewPackage(system.KindCore, "mainvg", ""),
		Efiboot:  system.NewPackage(system.KindEfiboot, "/efi", ""),
		CacheDir: "/var/lib/updater",
	}
}

func newTestInstaller(rec *recorder) (*Installer, *state.FileRepository[state.Journal], *[]string) {
	sys := testSystem()
	repo := state.NewFileRepository[state.Journal](afero.NewMemMapFs(), sys.JournalPath())

	var statuses []string

	installer := NewInstaller(sys, InstallerDeps{
		Fetcher:  fakeFetcher{rec},
		Selector: fakeSelector{rec},
		Writer:   fakeWriter{rec},
		Entries:  fakeEntries{rec},
		Journal:  journalSpy{recorder: rec, repo: repo},
		Notifier: NotifierFunc(func(_ context.Context, status string) { statuses = append(statuses, status) }),
		Now:      func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) },
	})

	return installer, repo, &statuses
}

func TestUpdateSequence(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	installer, repo, statuses := newTestInstaller(rec)

	result, err := installer.Update(t.Context(), &system.Remote{}, semver.MustParse("1.1.0"))
	require.NoError(t, err)
	require.Equal(t, PhaseDone, installer.Phase())

	require.Equal(t, []string{
		"fetch efiboot",
		"fetch core",
		"select",
		"journal ClearingStaleEntries",
		"clear",
		"journal WritingCore",
		"write",
		"journal PublishingBoot",
		"publish",
		"remove core",
		"remove efiboot",
		"journal removed",
	}, rec.calls)

	require.Equal(t, []string{
		"Start", "FetchingEfiboot", "FetchingCore", "SelectingVolume", "ClearingStaleEntries",
		"WritingCore", "PublishingBoot", "CleaningUp", "Done",
	}, *statuses)

	require.Equal(t, "/dev/mainvg/core_1.1.0", result.Volume.Path())
	require.Equal(t, "/efi/clipos-1.1.0.efi", result.BootEntry)
	require.Equal(t, []string{"clipos-0.9.0.efi"}, result.RemovedEntries)
	require.Equal(t, int64(42), result.Written)

	_, err = repo.Load(t.Context())
	require.ErrorIs(t, err, state.ErrNotFound)
}

// TestUpdateFailureStopsSequence fails every step in turn and checks nothing
// after it runs, and that cleanup never runs before the commit point.
func TestUpdateFailureStopsSequence(t *testing.T) {
	t.Parallel()

	steps := []struct {
		call  string
		phase Phase
	}{
		{call: "fetch efiboot", phase: PhaseFetchingEfiboot},
		{call: "fetch core", phase: PhaseFetchingCore},
		{call: "select", phase: PhaseSelectingVolume},
		{call: "journal ClearingStaleEntries", phase: PhaseClearingStaleEntries},
		{call: "clear", phase: PhaseClearingStaleEntries},
		{call: "write", phase: PhaseWritingCore},
		{call: "publish", phase: PhasePublishingBoot},
	}

	for _, step := range steps {
		t.Run(step.call, func(t *testing.T) {
			t.Parallel()

			boom := errors.New(step.call + " failed")
			rec := &recorder{fail: map[string]error{step.call: boom}}
			installer, _, statuses := newTestInstaller(rec)

			_, err := installer.Update(t.Context(), &system.Remote{}, semver.MustParse("1.1.0"))
			require.ErrorIs(t, err, boom)

			var phaseErr *PhaseError
			require.ErrorAs(t, err, &phaseErr)
			require.Equal(t, step.phase, phaseErr.Phase)
			require.Equal(t, PhaseFailed, installer.Phase())

			require.Equal(t, step.call, rec.calls[len(rec.calls)-1])
			require.NotContains(t, rec.calls, "remove core")
			require.NotContains(t, rec.calls, "journal removed")
			require.Contains(t, (*statuses)[len(*statuses)-1], "Failed")

			if step.call != "write" && step.call != "publish" {
				require.NotContains(t, rec.calls, "write")
			}

			require.NotContains(t, rec.calls[:len(rec.calls)-1], "publish")
		})
	}
}

func TestUpdateFetchFailureIsNotDestructive(t *testing.T) {
	t.Parallel()

	rec := &recorder{fail: map[string]error{"fetch core": errors.New("bad signature")}}
	installer, repo, _ := newTestInstaller(rec)

	_, err := installer.Update(t.Context(), &system.Remote{}, semver.MustParse("1.1.0"))
	require.Error(t, err)
	require.Equal(t, []string{"fetch efiboot", "fetch core"}, rec.calls)

	_, err = repo.Load(t.Context())
	require.ErrorIs(t, err, state.ErrNotFound)
}

// TestUpdateSelectionFailureLeavesNoJournal checks a missing volume group
// reports no interrupted install, and keeps the journal of an earlier run.
func TestUpdateSelectionFailureLeavesNoJournal(t *testing.T) {
	t.Parallel()

	rec := &recorder{fail: map[string]error{"select": errors.New("could not find destination VG")}}
	installer, repo, _ := newTestInstaller(rec)

	_, err := installer.Update(t.Context(), &system.Remote{}, semver.MustParse("1.1.0"))
	require.Error(t, err)
	require.Equal(t, []string{"fetch efiboot", "fetch core", "select"}, rec.calls)

	exists, err := repo.Exists(t.Context())
	require.NoError(t, err)
	require.False(t, exists)

	earlier := &state.Journal{OSName: "clipos", Phase: "WritingCore", Target: "1.1.0", Volume: "/dev/mainvg/core_1.1.0"}
	require.NoError(t, repo.Save(t.Context(), earlier))

	_, err = installer.Update(t.Context(), &system.Remote{}, semver.MustParse("1.1.0"))
	require.Error(t, err)

	kept, err := repo.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, "WritingCore", kept.Phase)
	require.Equal(t, "/dev/mainvg/core_1.1.0", kept.Volume)
}

func TestUpdateKeepsJournalWhenWriteFails(t *testing.T) {
	t.Parallel()

	rec := &recorder{fail: map[string]error{"write": errors.New("device gone")}}
	installer, repo, _ := newTestInstaller(rec)

	_, err := installer.Update(t.Context(), &system.Remote{}, semver.MustParse("1.1.0"))
	require.Error(t, err)

	journal, err := repo.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, string(PhaseWritingCore), journal.Phase)
	require.Equal(t, "1.0.0", journal.From)
	require.Equal(t, "1.1.0", journal.Target)
	require.Equal(t, "/dev/mainvg/core_1.1.0", journal.Volume)
}

func TestUpdateRefusesRunningVersion(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	installer, _, _ := newTestInstaller(rec)

	_, err := installer.Update(t.Context(), &system.Remote{}, semver.MustParse("1.0.0"))
	require.ErrorIs(t, err, errTargetIsRunning)
	require.Empty(t, rec.calls)

	var phaseErr *PhaseError
	require.ErrorAs(t, err, &phaseErr)
	require.Equal(t, PhaseStart, phaseErr.Phase)
}

func TestPhaseCommitted(t *testing.T) {
	t.Parallel()

	require.False(t, PhasePublishingBoot.Committed())
	require.False(t, PhaseWritingCore.Committed())
	require.True(t, PhaseCleaningUp.Committed())
	require.True(t, PhaseDone.Committed())
}
