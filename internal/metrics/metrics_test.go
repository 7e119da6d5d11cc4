package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerExposesCollectors(t *testing.T) {
	TransactionsRejected.WithLabelValues("test").Inc()
	ChainHeight.Set(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}

	assert.Contains(t, string(body), `votem_transactions_rejected_total{reason="test"}`)
	assert.Contains(t, string(body), "votem_chain_height 3")
}
