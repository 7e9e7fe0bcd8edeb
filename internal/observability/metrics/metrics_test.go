package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndNilSafety(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg, Config{ServiceName: "test"})
	require.NoError(t, err)

	m.IncInvoiceMutation(OperationPayment)
	m.IncInvoiceMutation(OperationPayment)
	m.RecordPayment(2500)
	m.IncRenewalCreated()
	m.AddJobProcessed("renewal_scan", 3)
	m.AddJobProcessed("renewal_scan", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.invoiceMutations.WithLabelValues(OperationPayment)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentsRecorded))
	assert.Equal(t, 2500.0, testutil.ToFloat64(m.paymentAmount))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.renewalsCreated))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.jobProcessed.WithLabelValues("renewal_scan")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.IncInvoiceMutation(OperationSave)
		nilMetrics.RecordPayment(1)
		nilMetrics.IncJobError("renewal_scan", errors.New("boom"))
	})
}

func TestNew_ToleratesDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, Config{})
	require.NoError(t, err)
	_, err = New(reg, Config{})
	require.NoError(t, err)
}

func TestClassifyErrorType(t *testing.T) {
	assert.Equal(t, "", ClassifyErrorType(nil))
	assert.Equal(t, ErrorTypeDeadlineExceeded, ClassifyErrorType(fmt.Errorf("scan: %w", context.DeadlineExceeded)))
	assert.Equal(t, ErrorTypeLockConflict, ClassifyErrorType(errors.New("database is locked")))
	assert.Equal(t, ErrorTypeUnknown, ClassifyErrorType(errors.New("boom")))
}
