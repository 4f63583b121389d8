//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"crowdfund/internal/enrollment/models"
	"crowdfund/internal/enrollment/outbox"
	"crowdfund/internal/enrollment/store"
	"crowdfund/internal/platform/kafka"
	"crowdfund/pkg/testutil/containers"
)

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	brokers  []string
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox", "enrollments"))
}

func (s *RelaySuite) TestCreatedEventReachesKafka() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	topic := "enrollments.created.relay-test"
	producer, err := kafka.NewProducer(s.brokers, topic)
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(producer.EnsureTopic(ctx, 1, 1))

	e, err := store.NewPostgres(s.postgres.DB).Insert(ctx, models.Validated{
		Name:          "Bob",
		TwitterHandle: "@bob",
		ProfileImage:  models.ProfileImage{URL: "https://img/x.png", Key: "k1"},
	})
	s.Require().NoError(err)

	outboxStore := outbox.NewPostgres(s.postgres.DB)
	relay := outbox.NewRelay(outboxStore, producer)
	n, err := relay.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = relay.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(0, n, "stamped rows are not sent twice")

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(e.ID.String(), string(records[0].Key))

	var event models.CreatedEvent
	s.Require().NoError(json.Unmarshal(records[0].Value, &event))
	s.Equal(e.ID.String(), event.EnrollmentID)
	s.Equal("@bob", event.TwitterHandle)
}
