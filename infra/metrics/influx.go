package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/jobdone/core/metrics"
	"github.com/kilianp07/jobdone/infra/logger"
)

// InfluxSink writes dock event points to an InfluxDB instance.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the instance and returns a NopSink when the
// health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordEventCreated writes a dock_event_created point.
func (s *InfluxSink) RecordEventCreated(ev coremetrics.EventCreated) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dock_event_created").
		AddTag("dock_set_id", strconv.Itoa(ev.Event.DockSetID)).
		AddTag("component", "broker").
		AddField("event_id", ev.Event.ID).
		AddField("dock_no", ev.Event.DockNo).
		SetTime(ev.Event.CreatedAt)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordEventAcked writes a dock_event_acked point carrying the latency.
func (s *InfluxSink) RecordEventAcked(ev coremetrics.EventAcked) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	at := ev.Time
	if ev.Event.AckedAt != nil {
		at = *ev.Event.AckedAt
	}
	p := write.NewPointWithMeasurement("dock_event_acked").
		AddTag("dock_set_id", strconv.Itoa(ev.Event.DockSetID)).
		AddTag("component", "broker").
		AddField("event_id", ev.Event.ID).
		AddField("dock_no", ev.Event.DockNo).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(at)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close flushes and closes the client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
