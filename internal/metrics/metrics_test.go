package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletledger/internal/domain"
	"github.com/alanyoungcy/walletledger/internal/ledger"
)

func TestObserveDiagnostics(t *testing.T) {
	r := New()
	d := &ledger.Diagnostics{
		DecodeFailures:       2,
		ConversionFailures:   1,
		MismatchedMakerFills: 2,
		UnknownTags:          map[domain.Tag]int{99: 3},
	}

	r.ObserveDiagnostics(d, ledger.MatchReport{Unmatched: 4, ShortFirst: 1})
	r.ObserveDiagnostics(d, ledger.MatchReport{})

	assert.Equal(t, 4.0, testutil.ToFloat64(r.DecodeFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ConversionFailures))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.UnmatchedCloses))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ShortFirstOpens))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.MismatchedMakerFills))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.UnknownTags.WithLabelValues("unknown(99)")))
}

func TestObserveSync(t *testing.T) {
	r := New()
	r.ObserveSync("ok", time.Second, 12, 7)
	r.ObserveSync("degraded", time.Second, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Syncs.WithLabelValues("ok")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.TxFetched))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.TradesInserted))
}

func TestHandler(t *testing.T) {
	r := New()
	r.DecodeFailures.Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "walletledger_decode_failures_total 1")
}
