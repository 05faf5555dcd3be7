package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditd/pkg/platform/sentinel"
)

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func validBuilder() *Builder {
	return NewBuilder(TopicAuthentication).Realm("/").Time(testTime)
}

func TestBuilder_Build_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		field   string
	}{
		{"missing topic", NewBuilder("").Realm("/").Time(testTime), FieldTopic},
		{"missing timestamp", NewBuilder(TopicAccess).Realm("/"), FieldTimestamp},
		{"missing realm", NewBuilder(TopicAccess).Time(testTime), FieldRealm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestBuilder_Build_UnknownTopic(t *testing.T) {
	_, err := NewBuilder("billing").Realm("/").Time(testTime).Build()

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldTopic, verr.Field)
}

func TestBuilder_Build_FixMissingFieldThenBuild(t *testing.T) {
	b := NewBuilder(TopicAuthentication).Time(testTime)

	_, err := b.Build()
	require.Error(t, err)

	rec, err := b.Realm("/").Build()
	require.NoError(t, err)
	assert.Equal(t, "/", rec.Realm())
}

func TestBuilder_Build_FieldsMatchWhatWasSet(t *testing.T) {
	later := testTime.Add(time.Minute)

	rec, err := NewBuilder(TopicAuthentication).
		Realm("/first").
		Realm("/").
		Time(testTime).
		Time(later).
		EventName("AM-LOGIN-COMPLETED").
		UserID("id=demo,ou=user").
		Build()
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID())
	assert.Equal(t, TopicAuthentication, rec.Topic())
	assert.Equal(t, "/", rec.Realm())
	assert.True(t, later.Equal(rec.Timestamp()))

	fields := rec.Fields()
	delete(fields, FieldID)
	assert.Equal(t, map[string]any{
		FieldTopic:     "authentication",
		FieldRealm:     "/",
		FieldTimestamp: later,
		FieldEventName: "AM-LOGIN-COMPLETED",
		FieldUserID:    "id=demo,ou=user",
	}, fields)
}

func TestBuilder_TimeMillis(t *testing.T) {
	rec, err := NewBuilder(TopicActivity).Realm("/").TimeMillis(testTime.UnixMilli()).Build()
	require.NoError(t, err)
	assert.True(t, testTime.Equal(rec.Timestamp()))

	_, err = NewBuilder(TopicActivity).Realm("/").TimeMillis(-1).Build()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldTimestamp, verr.Field)
}

func TestBuilder_SetterValidation(t *testing.T) {
	tests := []struct {
		name  string
		apply func(b *Builder)
		field string
	}{
		{"empty realm", func(b *Builder) { b.Realm("") }, FieldRealm},
		{"blank realm", func(b *Builder) { b.Realm("   ") }, FieldRealm},
		{"zero time", func(b *Builder) { b.Time(time.Time{}) }, FieldTimestamp},
		{"nil contexts", func(b *Builder) { b.Contexts(nil) }, FieldContexts},
		{"empty context id", func(b *Builder) { b.Context(ContextIP, "") }, FieldContexts},
		{"empty context kind", func(b *Builder) { b.Context("", "abc") }, FieldContexts},
		{"nil entries", func(b *Builder) { b.Entries(nil) }, FieldEntries},
		{"empty tracking ids", func(b *Builder) { b.TrackingIDs() }, FieldTrackingIDs},
		{"blank principal", func(b *Builder) { b.Principals("demo", " ") }, FieldPrincipal},
		{"nil before state", func(b *Builder) { b.Before(nil) }, FieldBefore},
		{"empty client ip", func(b *Builder) { b.Client("", "curl/8.0") }, FieldClient},
		{"empty http method", func(b *Builder) { b.HTTP("", "/json/authenticate") }, FieldHTTP},
		{"empty response status", func(b *Builder) { b.Response("", time.Second) }, FieldResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBuilder()
			tt.apply(b)

			_, err := b.Build()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestBuilder_FirstSetterErrorWins(t *testing.T) {
	_, err := validBuilder().Realm("").EventName("").Build()

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldRealm, verr.Field)
}

func TestBuilder_UseAfterBuild(t *testing.T) {
	b := validBuilder()
	_, err := b.Build()
	require.NoError(t, err)

	t.Run("second build fails", func(t *testing.T) {
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("setter after build does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			b.Realm("/other").Context(ContextIP, "1.2.3.4").Entry(Entry{ModuleID: "DataStore"})
		})
		_, err := b.Build()
		assert.True(t, errors.Is(err, ErrInvalidState))
	})
}

func TestBuilder_Context_MergesByKind(t *testing.T) {
	rec, err := validBuilder().
		Context(ContextIP, "1.2.3.4").
		Context(ContextIP, "5.6.7.8").
		Build()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"IP": "5.6.7.8"}, rec.Contexts())
}

func TestBuilder_Contexts_Union(t *testing.T) {
	rec, err := validBuilder().
		Context(ContextSession, "s-1").
		Contexts(map[string]string{"IP": "1.2.3.4", "session": "s-2"}).
		Contexts(map[string]string{"authIndex": "service"}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"session":   "s-2",
		"IP":        "1.2.3.4",
		"authIndex": "service",
	}, rec.Contexts())
}

func TestBuilder_Contexts_CallerMapIsCopied(t *testing.T) {
	in := map[string]string{"IP": "1.2.3.4"}
	rec, err := validBuilder().Contexts(in).Build()
	require.NoError(t, err)

	in["IP"] = "changed"
	assert.Equal(t, "1.2.3.4", rec.Contexts()["IP"])
}

func TestBuilder_Entry(t *testing.T) {
	t.Run("empty entry is omitted", func(t *testing.T) {
		rec, err := validBuilder().Entry(Entry{}).Build()
		require.NoError(t, err)

		assert.False(t, rec.Has(FieldEntries))
		assert.Nil(t, rec.Entries())
	})

	t.Run("empty values are dropped from entry", func(t *testing.T) {
		rec, err := validBuilder().
			Entry(Entry{ModuleID: "DataStore", Result: "SUCCESS"}).
			Entry(Entry{Result: "FAILED", Info: map[string]string{}}).
			Entry(Entry{Info: map[string]string{"ip": "1.2.3.4"}}).
			Build()
		require.NoError(t, err)

		assert.Equal(t, []map[string]any{
			{"moduleId": "DataStore", "result": "SUCCESS"},
			{"result": "FAILED"},
			{"info": map[string]string{"ip": "1.2.3.4"}},
		}, rec.Entries())
	})

	t.Run("entries replaces prior entries", func(t *testing.T) {
		rec, err := validBuilder().
			Entry(Entry{ModuleID: "LDAP"}).
			Entries([]Entry{{ModuleID: "DataStore"}, {}}).
			Build()
		require.NoError(t, err)

		assert.Equal(t, []map[string]any{{"moduleId": "DataStore"}}, rec.Entries())
	})

	t.Run("entries of only empty values clears the field", func(t *testing.T) {
		rec, err := validBuilder().
			Entry(Entry{ModuleID: "LDAP"}).
			Entries([]Entry{{}}).
			Build()
		require.NoError(t, err)

		assert.False(t, rec.Has(FieldEntries))
	})
}

func TestBuilder_Client_ParsesUserAgent(t *testing.T) {
	const ua = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	rec, err := NewBuilder(TopicAccess).Realm("/").Time(testTime).Client("10.0.0.1", ua).Build()
	require.NoError(t, err)

	v, ok := rec.Get(FieldClient)
	require.True(t, ok)
	client := v.(map[string]any)
	assert.Equal(t, "10.0.0.1", client["ip"])
	assert.Equal(t, ua, client["userAgent"])
	assert.Equal(t, "Chrome", client["browser"])
	assert.Equal(t, false, client["bot"])
}

func TestBuilder_AccessFields(t *testing.T) {
	rec, err := NewBuilder(TopicAccess).
		Realm("/").
		Time(testTime).
		Client("10.0.0.1", "").
		HTTP("POST", "/json/authenticate").
		Response("SUCCESSFUL", 1500*time.Millisecond).
		Build()
	require.NoError(t, err)

	client, _ := rec.Get(FieldClient)
	assert.Equal(t, map[string]any{"ip": "10.0.0.1"}, client)
	httpField, _ := rec.Get(FieldHTTP)
	assert.Equal(t, map[string]any{"method": "POST", "path": "/json/authenticate"}, httpField)
	resp, _ := rec.Get(FieldResponse)
	assert.Equal(t, map[string]any{"status": "SUCCESSFUL", "elapsedTimeMs": int64(1500)}, resp)
}

func TestBuilder_ConfigFields_StateIsCopied(t *testing.T) {
	before := map[string]any{"enabled": false, "nested": map[string]any{"k": "v"}}

	rec, err := NewBuilder(TopicConfig).
		Realm("/").
		Time(testTime).
		ObjectID("audit/filters").
		Operation("UPDATE").
		ChangedFields("enabled").
		Before(before).
		After(map[string]any{"enabled": true}).
		RunAs("amadmin").
		Build()
	require.NoError(t, err)

	before["enabled"] = true
	before["nested"].(map[string]any)["k"] = "changed"

	got, _ := rec.Get(FieldBefore)
	assert.Equal(t, map[string]any{"enabled": false, "nested": map[string]any{"k": "v"}}, got)
	changed, _ := rec.Get(FieldChangedFields)
	assert.Equal(t, []string{"enabled"}, changed)
}
