package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/rental_warehouse/ETL/memstore"
	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

func TestDiffReportsNewAndChangedRuns(t *testing.T) {
	runs := memstore.NewRuns()
	hub := NewHub(runs, utils.Discard())

	first, err := runs.Start(models.ProcessExtractionFull, time.Now())
	require.NoError(t, err)
	second, err := runs.Start(models.ProcessTransformation, time.Now())
	require.NoError(t, err)

	recent, err := runs.Recent(snapshotSize)
	require.NoError(t, err)
	changed := hub.diff(recent)
	require.Len(t, changed, 2)
	assert.Equal(t, first, changed[0].ID, "старые запуски первыми")
	assert.Equal(t, second, changed[1].ID)

	recent, err = runs.Recent(snapshotSize)
	require.NoError(t, err)
	assert.Empty(t, hub.diff(recent))

	require.NoError(t, runs.Finish(second, models.RunOutcome{EndedAt: time.Now(), Status: models.RunCompleted, RowsWritten: 5}))
	recent, err = runs.Recent(snapshotSize)
	require.NoError(t, err)
	changed = hub.diff(recent)
	require.Len(t, changed, 1)
	assert.Equal(t, models.RunCompleted, changed[0].Status)
}

func TestClientReceivesSnapshotThenUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := memstore.NewRuns()
	id, err := runs.Start(models.ProcessExtractionFull, time.Now())
	require.NoError(t, err)

	hub := NewHub(runs, utils.Discard())
	go hub.Run(ctx)
	_, err = hub.Poll(ctx)
	require.NoError(t, err)

	server := httptest.NewServer(hub)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snapshot Message
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, TypeSnapshot, snapshot.Type)
	require.Len(t, snapshot.Runs, 1)
	assert.Equal(t, id, snapshot.Runs[0].ID)

	require.NoError(t, runs.Finish(id, models.RunOutcome{EndedAt: time.Now(), Status: models.RunError, ErrorMessage: "boom"}))
	sent, err := hub.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	var update Message
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, TypeRunUpdate, update.Type)
	require.NotNil(t, update.Run)
	assert.Equal(t, models.RunError, update.Run.Status)
	assert.Equal(t, "boom", update.Run.ErrorMessage)
}
