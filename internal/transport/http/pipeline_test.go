package httptransport_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditd/internal/admin"
	"auditd/internal/platform/metrics"
	httptransport "auditd/internal/transport/http"
	"auditd/pkg/platform/audit"
	"auditd/pkg/platform/audit/filter"
	"auditd/pkg/platform/audit/handlers/memory"
	"auditd/pkg/platform/audit/publisher"
	"auditd/pkg/platform/middleware/auth"
	"auditd/pkg/testutil"
)

const signingKey = "0123456789abcdef0123456789abcdef"

func newServer(t *testing.T) (http.Handler, *memory.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := filter.NewWithDecisions(map[filter.Key]bool{
		{Realm: "/", Topic: audit.TopicConfig}: true,
	})
	m := metrics.New()
	pub, err := publisher.New(f, publisher.WithLogger(logger), publisher.WithMetrics(publisher.NewMetrics(m.Registry)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	sink := memory.New("memory", memory.WithLimit(100))
	for _, topic := range audit.Topics() {
		require.NoError(t, pub.Register(topic, sink))
	}

	factory := audit.NewFactory()
	configAuditor, err := audit.NewConfigAuditor(factory, pub, f)
	require.NoError(t, err)
	accessAuditor, err := audit.NewAccessAuditor(factory, pub, f)
	require.NoError(t, err)

	manager, err := admin.NewManager(f, configAuditor, "/", admin.WithRecords(sink), admin.WithLogger(logger))
	require.NoError(t, err)
	handler := admin.NewHandler(manager, auth.NewHMACValidator(signingKey, "auditd"),
		admin.AccessAudit(accessAuditor, "/", logger), logger)

	return httptransport.NewRouter(httptransport.Dependencies{
		Metrics: m,
		Admin:   handler,
		Checks: map[string]httptransport.HealthCheck{
			"filter": func(context.Context) error { return nil },
		},
	}), sink
}

func TestAdminPipeline(t *testing.T) {
	testutil.Given(t, "a running audit server auditing config changes in the root realm", func(t *testing.T) {
		router, sink := newServer(t)
		token := testutil.AdminToken(t, signingKey)

		testutil.When(t, "an admin lists filters", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.WithBearer(
				testutil.NewJSONRequest(t, http.MethodGet, "/admin/audit/filters", nil), token))

			testutil.Then(t, "the configured decision is returned", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rr.Code)
				resp := testutil.UnmarshalResponse[admin.FiltersResponse](t, rr)
				assert.Equal(t, []admin.FilterEntry{{Realm: "/", Topic: "config", Enabled: true}}, resp.Filters)
			})
		})

		testutil.When(t, "an admin enables access auditing", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.WithBearer(
				testutil.NewJSONRequest(t, http.MethodPut, "/admin/audit/filters",
					map[string]any{"realm": "/", "topic": "access", "enabled": true}), token))

			testutil.Then(t, "the change is accepted", func(t *testing.T) {
				assert.Equal(t, http.StatusOK, rr.Code)
			})
			testutil.And(t, "the change itself is recorded on the config topic", func(t *testing.T) {
				recs, err := sink.ListRecent(context.Background(), 10, audit.TopicConfig)
				require.NoError(t, err)
				require.Len(t, recs, 1)
				runAs, _ := recs[0].Get(audit.FieldRunAs)
				assert.Equal(t, "test-admin", runAs)
			})
		})

		testutil.When(t, "an unauthenticated client reads records", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/admin/audit/records", nil))

			testutil.Then(t, "it is rejected", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			})
			testutil.And(t, "the rejected request is recorded on the access topic", func(t *testing.T) {
				recs, err := sink.ListRecent(context.Background(), 1, audit.TopicAccess)
				require.NoError(t, err)
				require.Len(t, recs, 1)
				resp, _ := recs[0].Get(audit.FieldResponse)
				assert.Equal(t, "FAILED", resp.(map[string]any)["status"])
			})
		})

		testutil.When(t, "an admin reads recent config records", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.WithBearer(
				testutil.NewJSONRequest(t, http.MethodGet, "/admin/audit/records?limit=5&topic=config", nil), token))

			testutil.Then(t, "the filter change is listed", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rr.Code)
				resp := testutil.UnmarshalResponse[struct {
					Records []map[string]any `json:"records"`
					Total   int              `json:"total"`
				}](t, rr)
				require.Equal(t, 1, resp.Total)
				assert.Equal(t, "/|access", resp.Records[0][audit.FieldObjectID])
			})
		})

		testutil.When(t, "metrics are scraped", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/metrics", nil))

			testutil.Then(t, "publish outcomes are exposed", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rr.Code)
				assert.Contains(t, rr.Body.String(), `auditd_publish_total{outcome="published",topic="config"}`)
			})
		})
	})
}
