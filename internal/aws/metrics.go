package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// ReconcileSummary is the per-run outcome of a purchase backfill.
type ReconcileSummary struct {
	Candidates int
	Sent       int
	Skipped    int
	Failed     int
}

// MetricsPublisher writes service metrics to CloudWatch under a single namespace.
type MetricsPublisher struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetricsPublisher returns a MetricsPublisher. A nil client disables publishing.
func NewMetricsPublisher(client CloudWatchAPI, namespace string) *MetricsPublisher {
	return &MetricsPublisher{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// PublishReconcileSummary records the counters of one backfill run.
func (m *MetricsPublisher) PublishReconcileSummary(ctx context.Context, trigger string, s ReconcileSummary) error {
	if m == nil || m.client == nil {
		return nil
	}
	now := m.nowFunc()
	dims := []cwtypes.Dimension{{Name: awsString("Trigger"), Value: awsString(trigger)}}
	datum := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: awsString(name),
			Value:      sdkaws.Float64(float64(v)),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  &now,
			Dimensions: dims,
		}
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: awsString(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			datum("BackfillCandidates", s.Candidates),
			datum("BackfillPurchasesSent", s.Sent),
			datum("BackfillSkipped", s.Skipped),
			datum("BackfillFailures", s.Failed),
		},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
