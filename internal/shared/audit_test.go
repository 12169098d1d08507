package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuditRecordRequiresIdentity(t *testing.T) {
	l := &AuditLogger{}
	err := l.Record(context.Background(), AuditLog{Action: "CREATE"})
	require.Error(t, err)

	var nilLogger *AuditLogger
	err = nilLogger.Record(context.Background(), AuditLog{Action: "CREATE", Entity: "foodstuff", EntityID: "1"})
	require.Error(t, err)
}

func TestTimestampOrNil(t *testing.T) {
	require.Nil(t, timestampOrNil(time.Time{}))

	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	require.Equal(t, at, timestampOrNil(at))
}
