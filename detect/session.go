package detect

import (
	"log/slog"

	"soundsense/audio"
	"soundsense/match"
	"soundsense/models"
	"soundsense/taxonomy"
	"soundsense/utils"
)

// Session owns one listening session: the framer, both classification paths
// and the dispatcher, fed sequentially by the transport's read loop. Exactly
// one window is classified at a time; the custom-profile list is re-read
// from the store per window so concurrent profile edits are picked up as
// snapshots, never mid-pass.
type Session struct {
	framer     *audio.Framer
	classifier *taxonomy.Classifier
	matcher    *match.Matcher
	dispatcher *Dispatcher
	store      Store
	logger     *slog.Logger
}

// NewSession assembles a session around freshly constructed collaborators.
func NewSession(classifier *taxonomy.Classifier, matcher *match.Matcher, dispatcher *Dispatcher, store Store) *Session {
	return &Session{
		framer:     audio.NewFramer(),
		classifier: classifier,
		matcher:    matcher,
		dispatcher: dispatcher,
		store:      store,
		logger:     utils.GetLogger(),
	}
}

// Begin resets per-session state and surfaces the listening state.
func (s *Session) Begin() {
	s.framer.Reset()
	s.classifier.Reset()
	s.dispatcher.Feed().PublishListening(models.ListeningState{Listening: true})
	s.logger.Info("listening session started")
}

// ProcessChunk consumes one transport chunk, classifying every completed
// window. Per-window inference failures are logged and skipped; they never
// end the session.
func (s *Session) ProcessChunk(chunk []byte) {
	for _, window := range s.framer.Produce(chunk) {
		s.classifyWindow(window)
	}
}

func (s *Session) classifyWindow(window []float64) {
	pred, err := s.classifier.ClassifyWindow(window)
	if err != nil {
		s.logger.Warn("skipping window: taxonomy inference failed", slog.Any("error", err))
	} else {
		s.dispatcher.DispatchTaxonomy(pred)
	}

	customProfiles, err := s.store.GetCustomProfiles()
	if err != nil {
		s.logger.Warn("failed to load custom profiles", slog.Any("error", err))
		return
	}
	if len(customProfiles) == 0 {
		return
	}

	embedding, err := s.matcher.EmbedWindow(window)
	if err != nil {
		s.logger.Warn("skipping window: embedding failed", slog.Any("error", err))
		return
	}

	if best, ok := s.matcher.BestMatch(embedding, customProfiles); ok {
		s.dispatcher.DispatchCustomMatch(best)
	}
}

// End terminates the session: any buffered partial window is discarded and
// observers see a not-listening state with the close reason.
func (s *Session) End(reason string) {
	if pending := s.framer.PendingSamples(); pending > 0 {
		s.logger.Debug("discarding trailing partial window", slog.Int("samples", pending))
	}
	s.framer.Reset()
	s.dispatcher.Feed().PublishListening(models.ListeningState{Listening: false, Reason: reason})
	s.logger.Info("listening session ended", slog.String("reason", reason))
}
