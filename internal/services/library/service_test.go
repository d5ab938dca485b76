package library

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haptisync/haptisync-go/internal/services/testutil"
	"github.com/haptisync/haptisync-go/pkg/funscript"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tdb, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return NewService(tdb.ScriptRepo, tdb.PlaylistRepo)
}

// sampleFunscript builds a valid three-action funscript running to durMs.
func sampleFunscript(title string, durMs int64) []byte {
	s := &funscript.Script{
		Metadata: funscript.Metadata{Title: title},
		Actions: []funscript.Action{
			{At: 0, Pos: 10},
			{At: durMs / 2, Pos: 90},
			{At: durMs, Pos: 20},
		},
	}
	data, err := s.Marshal()
	if err != nil {
		panic(err)
	}
	return data
}

func TestImportStoresParsedScript(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	model, err := svc.Import(ctx, "Warmup", sampleFunscript("ignored", 4000))
	require.NoError(t, err)
	require.NotEmpty(t, model.ID)
	assert.Equal(t, "Warmup", model.Name)
	assert.Equal(t, int64(4000), model.DurationMs)
	assert.Equal(t, 3, model.ActionCount)
	assert.Greater(t, model.AverageSpeed, 0.0)

	stored, err := svc.Get(ctx, model.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	var actions []funscript.Action
	require.NoError(t, json.Unmarshal([]byte(stored.Actions), &actions))
	assert.Len(t, actions, 3)
	assert.Equal(t, funscript.Action{At: 4000, Pos: 20}, actions[2])
}

func TestImportFallsBackToMetadataTitle(t *testing.T) {
	svc := newTestService(t)

	model, err := svc.Import(context.Background(), "", sampleFunscript("From Meta", 2000))
	require.NoError(t, err)
	assert.Equal(t, "From Meta", model.Name)
}

func TestImportRejectsInvalidData(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, "empty", []byte(`{}`))
	assert.ErrorIs(t, err, funscript.ErrNoActions)

	_, err = svc.Import(ctx, "garbage", []byte(`not json at all`))
	assert.Error(t, err)
}

func TestImportFileUpsertsBySourcePath(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "wave.funscript")
	require.NoError(t, os.WriteFile(path, sampleFunscript("", 4000), 0o644))

	first, err := svc.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "wave", first.Name, "name should come from the filename")
	assert.Equal(t, int64(4000), first.DurationMs)

	require.NoError(t, os.WriteFile(path, sampleFunscript("", 8000), 0o644))
	second, err := svc.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "rewrite should reuse the existing row")
	assert.Equal(t, int64(8000), second.DurationMs)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestImportDirSkipsBadFiles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.funscript"), sampleFunscript("Good", 3000), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.funscript"), []byte("not a script"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("readme"), 0o644))

	imported, err := svc.ImportDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestScriptLoadsPlayableScript(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	model, err := svc.Import(ctx, "Loaded", sampleFunscript("", 5000))
	require.NoError(t, err)

	script, err := svc.Script(ctx, model.ID)
	require.NoError(t, err)
	assert.Len(t, script.Actions, 3)
	assert.Equal(t, int64(5000), script.DurationMs())
	assert.Equal(t, "Loaded", script.Metadata.Title)

	_, err = svc.Script(ctx, "missing")
	assert.Error(t, err)
}

func TestScriptIDsUniverse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	alpha, err := svc.Import(ctx, "Alpha", sampleFunscript("", 1000))
	require.NoError(t, err)
	bravo, err := svc.Import(ctx, "Bravo", sampleFunscript("", 1000))
	require.NoError(t, err)
	charlie, err := svc.Import(ctx, "Charlie", sampleFunscript("", 1000))
	require.NoError(t, err)

	all, err := svc.ScriptIDs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{alpha.ID, bravo.ID, charlie.ID}, all, "library universe is name-ordered")

	playlist, err := svc.CreatePlaylist(ctx, "Mix", nil, []string{charlie.ID, alpha.ID})
	require.NoError(t, err)

	scoped, err := svc.ScriptIDs(ctx, playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{charlie.ID, alpha.ID}, scoped, "playlist universe keeps entry order")
}

func TestPlaylistLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Import(ctx, "A", sampleFunscript("", 1000))
	require.NoError(t, err)
	b, err := svc.Import(ctx, "B", sampleFunscript("", 1000))
	require.NoError(t, err)

	desc := "late night"
	playlist, err := svc.CreatePlaylist(ctx, "Evening", &desc, []string{b.ID, a.ID})
	require.NoError(t, err)
	require.NotEmpty(t, playlist.ID)

	fetched, err := svc.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Len(t, fetched.Entries, 2)
	assert.Equal(t, b.ID, fetched.Entries[0].ScriptID)
	assert.Equal(t, a.ID, fetched.Entries[1].ScriptID)

	// Rename without touching entries.
	updated, err := svc.UpdatePlaylist(ctx, playlist.ID, "Evening v2", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Evening v2", updated.Name)
	assert.Len(t, updated.Entries, 2)

	// Replace the entries outright.
	updated, err = svc.UpdatePlaylist(ctx, playlist.ID, "", nil, []string{a.ID})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Evening v2", updated.Name)
	require.Len(t, updated.Entries, 1)
	assert.Equal(t, a.ID, updated.Entries[0].ScriptID)

	missing, err := svc.UpdatePlaylist(ctx, "nope", "x", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, svc.DeletePlaylist(ctx, playlist.ID))
	gone, err := svc.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDeleteScriptRemovesIt(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	model, err := svc.Import(ctx, "Doomed", sampleFunscript("", 1000))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, model.ID))

	gone, err := svc.Get(ctx, model.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = svc.Script(ctx, model.ID)
	assert.Error(t, err)
}
