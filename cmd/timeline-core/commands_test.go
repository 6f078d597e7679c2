package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/timeline-core/internal/consistency"
	"github.com/JamesPrial/timeline-core/internal/events"
	"github.com/JamesPrial/timeline-core/internal/storage"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "timeline-core", cmd.Use)

	for _, name := range []string{"serve", "validate", "scan"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, ".env", cmd.PersistentFlags().Lookup("env-file").DefValue)
}

// seedDatabase writes a manuscript where Alice is in two cities during one battle
func seedDatabase(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "timeline.db")
	ctx := context.Background()

	backend, err := storage.NewSqliteBackend(dbPath, false)
	require.NoError(t, err)
	service := consistency.NewService(backend, nil)

	require.NoError(t, service.UpsertManuscript(ctx, timeline.Manuscript{ID: "ms-1", WorldID: "w1", Title: "The Road"}))
	require.NoError(t, service.UpsertManuscript(ctx, timeline.Manuscript{ID: "ms-2", WorldID: "w1", Title: "The Return"}))
	require.NoError(t, service.UpsertEntities(ctx, []timeline.Entity{
		{ID: "alice", Name: "Alice", Kind: timeline.EntityKindCharacter, WorldID: "w1"},
		{ID: "city-a", Name: "City A", Kind: timeline.EntityKindLocation, WorldID: "w1"},
		{ID: "city-b", Name: "City B", Kind: timeline.EntityKindLocation, WorldID: "w1"},
	}))
	for i, location := range []string{"city-a", "city-b"} {
		_, err := service.CreateEvent(ctx, events.NewEvent{
			ManuscriptID: "ms-1",
			OrderIndex:   i + 1,
			LocationID:   location,
			CharacterIDs: []string{"alice"},
			Metadata:     timeline.EventMetadata{SimultaneousWith: "battle"},
		})
		require.NoError(t, err)
	}
	require.NoError(t, backend.Close())

	configPath := filepath.Join(dir, "config.yaml")
	config := "storageType: sqlite\nstoragePath: " + dbPath + "\nlogging:\n  level: error\n  format: json\n  output: stderr\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))
	return configPath
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	configPath := seedDatabase(t)

	out, err := execute(t, "", "validate", "--config", configPath, "ms-1")
	require.NoError(t, err)

	var result consistency.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Inconsistencies, 1)
	assert.Equal(t, timeline.InconsistencyLocationConflict, result.Inconsistencies[0].Type)

	// findings persist between runs and keep their identity
	out, err = execute(t, "", "validate", "--config", configPath, "--fail-on-findings", "ms-1")
	require.Error(t, err)
	var again consistency.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	require.Len(t, again.Inconsistencies, 1)
	assert.Equal(t, result.Inconsistencies[0].ID, again.Inconsistencies[0].ID)
	assert.Equal(t, 0, again.Reconcile.Added)
}

func TestValidateCommand_UnknownManuscript(t *testing.T) {
	configPath := seedDatabase(t)

	_, err := execute(t, "", "validate", "--config", configPath, "ghost")
	require.Error(t, err)
}

func TestScanCommand(t *testing.T) {
	configPath := seedDatabase(t)

	out, err := execute(t, "", "scan", "--config", configPath, "w1")
	require.NoError(t, err)

	var task timeline.ScanTask
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	assert.Equal(t, timeline.ScanCompleted, task.Status)
	assert.Equal(t, 2, task.TotalManuscripts)
	assert.Equal(t, 2, task.ManuscriptsCompleted)
	assert.Equal(t, 1, task.TotalChanges)
}

func TestScanCommand_AllUnknown(t *testing.T) {
	configPath := seedDatabase(t)

	out, err := execute(t, "", "scan", "--config", configPath, "w1", "ghost")
	require.Error(t, err)

	var task timeline.ScanTask
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	assert.Equal(t, timeline.ScanFailed, task.Status)
	require.Len(t, task.Failures, 1)
	assert.Equal(t, "ghost", task.Failures[0].ManuscriptID)
}

func TestServeCommand(t *testing.T) {
	configPath := seedDatabase(t)
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"timeline__validate_timeline","arguments":{"manuscriptId":"ms-1"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"timeline__location_at","arguments":{"manuscriptId":"ms-1","characterId":"alice"}}}`,
	}, "\n") + "\n"

	out, err := execute(t, input, "serve", "--config", configPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	var validate struct {
		ID     float64 `json:"id"`
		Result struct {
			Inconsistencies []timeline.Inconsistency `json:"inconsistencies"`
		} `json:"result"`
		Error *struct{ Code int } `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &validate))
	assert.Equal(t, float64(2), validate.ID)
	require.Nil(t, validate.Error)
	assert.Len(t, validate.Result.Inconsistencies, 1)
}
