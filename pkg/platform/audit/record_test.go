package audit

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_AccessorsReturnCopies(t *testing.T) {
	rec, err := validBuilder().
		Context(ContextIP, "1.2.3.4").
		Entry(Entry{ModuleID: "DataStore", Info: map[string]string{"k": "v"}}).
		Build()
	require.NoError(t, err)

	rec.Contexts()["IP"] = "changed"
	rec.Entries()[0][EntryModuleID] = "changed"
	rec.Entries()[0][EntryInfo].(map[string]string)["k"] = "changed"
	fields := rec.Fields()
	fields[FieldRealm] = "/changed"

	assert.Equal(t, "1.2.3.4", rec.Contexts()["IP"])
	assert.Equal(t, "DataStore", rec.Entries()[0][EntryModuleID])
	assert.Equal(t, "v", rec.Entries()[0][EntryInfo].(map[string]string)["k"])
	assert.Equal(t, "/", rec.Realm())
}

func TestRecord_ZeroValue(t *testing.T) {
	var rec Record
	assert.True(t, rec.IsZero())
	assert.Empty(t, rec.ID())
	assert.Zero(t, rec.Len())
	assert.True(t, rec.Timestamp().IsZero())
}

func TestRecord_JSONRoundTrip(t *testing.T) {
	rec, err := validBuilder().
		TransactionID("tx-1").
		Context(ContextSession, "s-1").
		Entry(Entry{ModuleID: "DataStore", Result: "SUCCESS", Info: map[string]string{"authLevel": "0"}}).
		Build()
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "2026-03-14T09:26:53Z", doc[FieldTimestamp])
	assert.Equal(t, rec.ID(), doc[FieldID])

	decoded, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec.ID(), decoded.ID())
	assert.Equal(t, rec.TransactionID(), decoded.TransactionID())
	assert.True(t, rec.Timestamp().Equal(decoded.Timestamp()))
	assert.Equal(t, rec.Contexts(), decoded.Contexts())
	assert.Equal(t, rec.Entries(), decoded.Entries())
}

func TestDecodeRecord_Invalid(t *testing.T) {
	_, err := DecodeRecord([]byte("not json"))
	require.Error(t, err)

	_, err = DecodeRecord([]byte(`{"timestamp":"yesterday"}`))
	require.Error(t, err)
}
