package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"soundsense/alerts"
	"soundsense/audio"
	"soundsense/db"
	"soundsense/detect"
	"soundsense/inference"
	"soundsense/match"
	"soundsense/models"
	"soundsense/stream"
	"soundsense/taxonomy"
	"soundsense/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	dbPath := utils.GetEnv("SOUNDSENSE_DB_PATH", "data/soundsense.db")
	store, err := db.NewSQLiteClient(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if err := store.SeedBuiltinProfiles(); err != nil {
		log.Fatalf("failed to seed builtin profiles: %v", err)
	}

	engineURL := utils.GetEnv("INFERENCE_SERVICE_URL", "http://localhost:5002")
	engine := inference.NewHTTPEngine(engineURL)
	if err := engine.HealthCheck(); err != nil {
		log.Printf("WARNING: %v", err)
		log.Println("The server will start but classification will fail until the inference service is reachable.")
	} else {
		log.Println("Inference service is available")
	}

	alpha := utils.GetEnvFloat("SMOOTHING_ALPHA", taxonomy.DefaultAlpha)
	if err := taxonomy.ValidateAlpha(alpha); err != nil {
		log.Fatalf("invalid SMOOTHING_ALPHA: %v", err)
	}
	minConfidence := utils.GetEnvFloat("MIN_CONFIDENCE", 0.3)

	matcher, err := match.NewMatcher(engine)
	if err != nil {
		log.Fatalf("failed to build matcher: %v", err)
	}

	sender := alerts.NewTwilioSenderFromEnv()
	if !sender.Configured() {
		log.Println("WARNING: messaging is not configured; emergency alerts will not be delivered")
	}
	alerter := alerts.NewAlerter(store, sender)

	feed := detect.NewFeed()
	manager := stream.NewManager(nil) // session factory is wired below
	dispatcher := detect.NewDispatcher(store, alerter, feed, manager, minConfidence)

	manager.SetSessionFactory(func() stream.AudioSession {
		classifier, err := taxonomy.NewClassifier(engine, alpha)
		if err != nil {
			log.Printf("failed to build classifier: %v", err)
			return nil
		}
		return detect.NewSession(classifier, matcher, dispatcher, store)
	})

	controller := newSocketController(store, matcher, manager, feed)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		controller.emitModelInfo(socket)
		controller.emitListeningState(socket)
		return nil
	})

	server.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		controller.handleRequestModelInfo(socket)
	})

	server.OnEvent("/", "analyzeClip", func(socket socketio.Conn, msg string) {
		// Run handler in goroutine to prevent blocking, with panic recovery
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleAnalyzeClip for socket %s: %v\n", socket.ID(), r)
					feed.PublishError("internal server error during processing")
				}
			}()
			controller.handleAnalyzeClip(socket, msg)
		}()
	})

	server.OnEvent("/", "requestRecentDetections", func(socket socketio.Conn) {
		controller.handleRecentDetections(socket)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	// Relay the observable feed to every connected UI client.
	events, cancelFeed := feed.Subscribe(64)
	defer cancelFeed()
	go func() {
		for event := range events {
			switch event.Type {
			case detect.EventClassification:
				server.BroadcastToNamespace("/", "classification", event.Result)
			case detect.EventListening:
				server.BroadcastToNamespace("/", "listeningState", event.State)
			case detect.EventError:
				server.BroadcastToNamespace("/", "analysisError", apiError{Message: event.Message})
			}
		}
	}()

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc(stream.PathMicAudio, manager.HandleMicAudio)
	mux.HandleFunc(stream.PathStartListening, manager.HandleStartListening)
	mux.HandleFunc(stream.PathStopListening, manager.HandleStopListening)
	mux.HandleFunc("/api/detections", newDetectionsHandler(store))
	mux.HandleFunc("/api/profiles", newProfilesHandler(store))
	mux.HandleFunc("/api/profiles/enroll", newEnrollHandler(store, matcher))
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(server, protocol == "https", port, mux)
}

func newDetectionsHandler(store *db.SQLiteClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		events, err := store.RecentDetections(100)
		if err != nil {
			log.Printf("failed to load detections: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to load detections")
			return
		}
		if events == nil {
			events = []models.DetectionEvent{}
		}

		writeJSON(w, http.StatusOK, events)
	}
}

func newProfilesHandler(store *db.SQLiteClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		profiles, err := store.GetAllProfiles()
		if err != nil {
			log.Printf("failed to load profiles: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to load profiles")
			return
		}
		if profiles == nil {
			profiles = []models.SoundProfile{}
		}

		writeJSON(w, http.StatusOK, profiles)
	}
}

// newEnrollHandler accepts a raw PCM16 sample upload and registers a custom
// sound profile with its prototype embedding.
func newEnrollHandler(store *db.SQLiteClient, matcher *match.Matcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if err := r.ParseMultipartForm(64 << 20); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
			return
		}

		name := strings.TrimSpace(r.FormValue("name"))
		if name == "" {
			writeJSONError(w, http.StatusBadRequest, "name is required")
			return
		}
		displayName := strings.TrimSpace(r.FormValue("displayName"))
		if displayName == "" {
			displayName = name
		}
		threshold := utils.GetEnvFloat("CUSTOM_DEFAULT_THRESHOLD", 0.7)
		if raw := strings.TrimSpace(r.FormValue("threshold")); raw != "" {
			if parsed, err := parseThreshold(raw); err == nil {
				threshold = parsed
			}
		}

		file, header, err := r.FormFile("sample")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "no audio sample provided")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "failed to read audio sample")
			return
		}

		samples := audio.DecodePCM16(audio.StripWAVHeader(data))
		if len(samples) == 0 {
			writeJSONError(w, http.StatusBadRequest, "audio sample is empty")
			return
		}
		source := models.NewUploadSource(header.Filename, samples, header.Filename,
			float64(len(samples))/float64(audio.SampleRate))

		embedding, err := matcher.EmbedClip(source.Samples)
		if err != nil {
			log.Printf("failed to embed enrollment clip: %v", err)
			writeJSONError(w, http.StatusBadGateway, "failed to embed audio sample")
			return
		}

		serialized, err := match.SerializePrototype(embedding)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to store embedding")
			return
		}

		profile, err := store.InsertProfile(models.SoundProfile{
			Name:             name,
			DisplayName:      displayName,
			IsEnabled:        true,
			Embedding:        serialized,
			Threshold:        threshold,
			VibrationPattern: []int64{0, 400, 100, 400},
		})
		if err != nil {
			log.Printf("failed to insert profile: %v", err)
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

func parseThreshold(raw string) (float64, error) {
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 || parsed > 1 {
		return 0, fmt.Errorf("threshold %v out of range (0, 1]", parsed)
	}
	return parsed, nil
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
