package report

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumepay/models"
	"resumepay/pkg/store"
)

type staticLister []models.VerificationAttempt

func (s staticLister) ListBetween(context.Context, time.Time, time.Time) ([]models.VerificationAttempt, error) {
	return s, nil
}

func attempts() staticLister {
	jan := time.Date(2026, 1, 27, 14, 0, 0, 0, time.UTC)
	return staticLister{
		{ID: 3, SessionID: "b", Accepted: true, FoundAmount: "300", CreatedAt: jan.Add(time.Hour)},
		{ID: 2, SessionID: "a", Reasons: "amount_mismatch,date_not_found", FoundAmount: "150", CreatedAt: jan},
		{ID: 1, SessionID: "a", Reasons: "not_a_receipt", CreatedAt: jan.Add(-time.Minute)},
		{ID: 4, SessionID: "c", Accepted: true, CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(attempts(), "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Sessions)
	assert.Equal(t, 1, s.Accepted)
	assert.Equal(t, map[string]int{"amount_mismatch": 1, "date_not_found": 1, "not_a_receipt": 1}, s.Reasons)
	require.Len(t, s.Rows, 3)
	assert.Equal(t, uint(1), s.Rows[0].ID)
}

func TestSummarizeRejectsBadMonth(t *testing.T) {
	_, err := Summarize(nil, "January")
	assert.Error(t, err)
}

func TestRunWritesReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Run(context.Background(), attempts(), "2026-02", true, &buf))
	out := buf.String()
	assert.Contains(t, out, "attempts=1 sessions=1 accepted=1 rejected=0")
	assert.Contains(t, out, "4|c||true|||2026-02-01T00:00:00Z")
}

func TestRunCountsWholeMonth(t *testing.T) {
	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "attempts.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	jan := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 5, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		require.NoError(t, st.SaveAttempt(ctx, &models.VerificationAttempt{SessionID: fmt.Sprintf("j%d", i), Accepted: i%2 == 0, CreatedAt: jan.Add(time.Duration(i) * time.Minute)}))
	}
	for i := 0; i < 450; i++ {
		require.NoError(t, st.SaveAttempt(ctx, &models.VerificationAttempt{SessionID: "f", CreatedAt: feb.Add(time.Duration(i) * time.Minute)}))
	}

	var buf bytes.Buffer
	require.NoError(t, Run(ctx, st, "2026-01", false, &buf))
	assert.Contains(t, buf.String(), "attempts=120 sessions=120 accepted=60 rejected=60")

	buf.Reset()
	require.NoError(t, Run(ctx, st, "2026-02", false, &buf))
	assert.Contains(t, buf.String(), "attempts=450 sessions=1 accepted=0 rejected=450")
}

func TestRunRejectsBadMonth(t *testing.T) {
	err := Run(context.Background(), staticLister{}, "2026-13", false, &bytes.Buffer{})
	assert.Error(t, err)
}
