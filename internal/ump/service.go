package ump

import (
	"encoding/json"

	"github.com/bsv-blockchain/go-sdk/overlay"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	klog "github.com/bsv-blockchain/ump-services/internal/log"
	"github.com/bsv-blockchain/ump-services/pkg/types"
)

// DefaultTopic is the overlay topic UMP tokens are admitted to.
const DefaultTopic = "tm_users"

// Options configures a Service.
type Options struct {
	// Topic is the only topic whose notifications are indexed.
	// Defaults to DefaultTopic.
	Topic string
	// StrictQueries rejects JSON queries that carry more than one lookup key.
	StrictQueries bool
}

// Service is the UMP lookup service. It is safe for concurrent use; all
// coordination happens in the store.
type Service struct {
	store  *Store
	topic  string
	strict bool
	logger zerolog.Logger
}

// NewService creates a lookup service over store.
func NewService(store *Store, opts Options) *Service {
	topic := opts.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Service{
		store:  store,
		topic:  topic,
		strict: opts.StrictQueries,
		logger: klog.WithTopic(topic),
	}
}

// Topic returns the topic this service indexes.
func (s *Service) Topic() string {
	return s.topic
}

// OutputAdmitted indexes a newly admitted output. Outputs on other topics
// are ignored.
func (s *Service) OutputAdmitted(op types.Outpoint, topic string, lockingScript *script.Script) error {
	if topic != s.topic {
		s.logger.Debug().Str("outpoint", op.String()).Str("other_topic", topic).Msg("Ignoring admission on untracked topic")
		return nil
	}
	presentation, recovery, err := DecodeToken(lockingScript)
	if err != nil {
		return err
	}
	rec := &Record{Outpoint: op, PresentationHash: presentation, RecoveryHash: recovery}
	if err := s.store.Insert(rec); err != nil {
		return err
	}
	s.logger.Debug().
		Str("outpoint", op.String()).
		Uint64("sequence", rec.Sequence).
		Msg("Indexed UMP token")
	return nil
}

// OutputSpent removes a spent output from the index. Outputs on other
// topics are ignored.
func (s *Service) OutputSpent(op types.Outpoint, topic string) error {
	if topic != s.topic {
		s.logger.Debug().Str("outpoint", op.String()).Str("other_topic", topic).Msg("Ignoring spend on untracked topic")
		return nil
	}
	if err := s.store.DeleteByIdentity(op); err != nil {
		return err
	}
	s.logger.Debug().Str("outpoint", op.String()).Msg("Removed spent UMP token")
	return nil
}

// OutputEvicted removes an output regardless of topic.
func (s *Service) OutputEvicted(op types.Outpoint) error {
	if err := s.store.DeleteByIdentity(op); err != nil {
		return err
	}
	s.logger.Debug().Str("outpoint", op.String()).Msg("Removed evicted UMP token")
	return nil
}

// Lookup resolves q to the newest matching output. The result holds zero or
// one outpoints; an empty result is not an error.
func (s *Service) Lookup(q *Query) ([]types.Outpoint, error) {
	if q == nil {
		return nil, ErrNoQuery
	}
	id := uuid.NewString()
	rec, err := s.store.FindNewest(*q)
	if err != nil {
		s.logger.Debug().Str("lookup_id", id).Err(err).Msg("Lookup failed")
		return nil, err
	}
	if rec == nil {
		s.logger.Debug().Str("lookup_id", id).Stringer("kind", q.Kind).Msg("Lookup found nothing")
		return []types.Outpoint{}, nil
	}
	s.logger.Debug().
		Str("lookup_id", id).
		Stringer("kind", q.Kind).
		Str("outpoint", rec.Outpoint.String()).
		Uint64("sequence", rec.Sequence).
		Msg("Lookup resolved")
	return []types.Outpoint{rec.Outpoint}, nil
}

// LookupJSON parses a JSON query object and resolves it.
func (s *Service) LookupJSON(raw json.RawMessage) ([]types.Outpoint, error) {
	q, keys, err := parseQuery(raw, s.strict)
	if err != nil {
		return nil, err
	}
	if keys > 1 {
		s.logger.Warn().Int("keys", keys).Stringer("used", q.Kind).Msg("Query carries several lookup keys")
	}
	return s.Lookup(q)
}

// Metadata describes the service for registry and discovery.
func (s *Service) Metadata() overlay.MetaData {
	return Metadata()
}

// Metadata returns the lookup service's registry metadata.
func Metadata() overlay.MetaData {
	return overlay.MetaData{
		Name:        "UMP Lookup Service",
		Description: "Lookup service for User Management Protocol tokens.",
	}
}

// Documentation returns the service's human-readable documentation.
func (s *Service) Documentation() string {
	return Documentation
}
