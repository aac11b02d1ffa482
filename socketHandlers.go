package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"log/slog"
	"time"

	"soundsense/audio"
	"soundsense/db"
	"soundsense/detect"
	"soundsense/match"
	"soundsense/models"
	"soundsense/stream"
	"soundsense/taxonomy"
	"soundsense/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

type socketController struct {
	store   *db.SQLiteClient
	matcher *match.Matcher
	manager *stream.Manager
	feed    *detect.Feed
}

func newSocketController(store *db.SQLiteClient, matcher *match.Matcher, manager *stream.Manager, feed *detect.Feed) *socketController {
	return &socketController{store: store, matcher: matcher, manager: manager, feed: feed}
}

// modelInfo is the vocabulary summary pushed to clients on connect.
type modelInfo struct {
	TaxonomyLabels []string `json:"taxonomyLabels"`
	ProfileCount   int      `json:"profileCount"`
	CustomProfiles int      `json:"customProfiles"`
	EnabledCount   int      `json:"enabledCount"`
}

// analyzeClipRequest is the payload for on-demand clip analysis: raw PCM16
// little-endian audio, base64-encoded.
type analyzeClipRequest struct {
	Audio    string  `json:"audio"`
	Filename string  `json:"filename"`
	Duration float64 `json:"duration"`
}

// clipAnalysis is the response to analyzeClip: the full custom-profile
// similarity ranking for the submitted clip.
type clipAnalysis struct {
	Filename  string                    `json:"filename,omitempty"`
	Duration  float64                   `json:"duration"`
	LatencyMs float64                   `json:"latencyMs"`
	Rankings  []match.ProfileSimilarity `json:"rankings"`
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	info := modelInfo{TaxonomyLabels: taxonomy.Labels()}

	profiles, err := c.store.GetAllProfiles()
	if err != nil {
		log.Printf("[emitModelInfo] failed to load profiles: %v\n", err)
	} else {
		info.ProfileCount = len(profiles)
		for _, profile := range profiles {
			if !profile.IsBuiltIn {
				info.CustomProfiles++
			}
			if profile.IsEnabled {
				info.EnabledCount++
			}
		}
	}

	socket.Emit("modelInfo", info)
}

func (c *socketController) handleRequestModelInfo(socket socketio.Conn) {
	c.emitModelInfo(socket)
}

func (c *socketController) emitListeningState(socket socketio.Conn) {
	state := models.ListeningState{Listening: c.manager.Active()}
	socket.Emit("listeningState", state)
}

func (c *socketController) handleAnalyzeClip(socket socketio.Conn, payload string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	log.Printf("[handleAnalyzeClip] Starting for socket %s, data length: %d\n", socket.ID(), len(payload))

	if payload == "" {
		logger.ErrorContext(ctx, "no data received in analyzeClip event")
		c.feed.PublishError("no audio data received")
		return
	}

	var request analyzeClipRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse clip payload", slog.Any("error", err))
		c.feed.PublishError("invalid audio payload")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(request.Audio)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to decode clip audio", slog.Any("error", err))
		c.feed.PublishError("invalid audio encoding")
		return
	}

	samples := audio.DecodePCM16(raw)
	if len(samples) == 0 {
		logger.ErrorContext(ctx, "clip decoded to zero samples", slog.String("socketID", socket.ID()))
		c.feed.PublishError("audio clip is empty")
		return
	}

	duration := request.Duration
	if duration == 0 {
		duration = float64(len(samples)) / float64(audio.SampleRate)
	}
	// Live recordings arrive without a filename; file uploads carry one.
	var source models.ClipSource
	if request.Filename != "" {
		source = models.NewUploadSource(request.Filename, samples, request.Filename, duration)
	} else {
		source = models.NewRecordingSource(samples)
	}

	logger.InfoContext(ctx, "received clip for analysis",
		slog.String("socketID", socket.ID()),
		slog.Int("sampleCount", len(source.Samples)),
		slog.Float64("duration", duration),
	)

	started := time.Now()

	embedding, err := c.matcher.EmbedClip(source.Samples)
	if err != nil {
		err := xerrors.New(err)
		log.Printf("[handleAnalyzeClip] Embedding error for socket %s: %v\n", socket.ID(), err)
		logger.ErrorContext(ctx, "failed to embed clip", slog.Any("error", err))
		c.feed.PublishError("unable to embed audio")
		return
	}

	profiles, err := c.store.GetCustomProfiles()
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to load custom profiles", slog.Any("error", err))
		c.feed.PublishError("failed to load profiles")
		return
	}

	rankings := c.matcher.RankProfiles(embedding, profiles)
	latency := time.Since(started).Seconds() * 1000

	logger.InfoContext(ctx, "clip analysis complete",
		slog.String("socketID", socket.ID()),
		slog.Float64("latency_ms", latency),
		slog.Int("rankedProfiles", len(rankings)),
	)

	socket.Emit("clipAnalysis", clipAnalysis{
		Filename:  source.Filename,
		Duration:  duration,
		LatencyMs: latency,
		Rankings:  rankings,
	})
	log.Printf("[handleAnalyzeClip] Emitted clip analysis for socket %s\n", socket.ID())
}

func (c *socketController) handleRecentDetections(socket socketio.Conn) {
	logger := utils.GetLogger()

	events, err := c.store.RecentDetections(50)
	if err != nil {
		err := xerrors.New(err)
		logger.Error("failed to load recent detections", slog.Any("error", err))
		c.feed.PublishError("failed to load detections")
		return
	}
	if events == nil {
		events = []models.DetectionEvent{}
	}

	socket.Emit("recentDetections", events)
}
