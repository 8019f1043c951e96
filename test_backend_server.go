package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
)

// Standalone mock of the whisper recognition service for local runs:
//
//	go run test_backend_server.go -port 8000

type transcriptionResponse struct {
	Text             string  `json:"text"`
	DetectedLanguage string  `json:"detected_language"`
	ProcessingTime   float64 `json:"processing_time"`
	Task             string  `json:"task"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          "healthy",
		"model":           "mock",
		"device":          "cpu",
		"gpu_available":   false,
		"supported_tasks": []string{"transcribe", "translate", "translate_to_language"},
	})
}

func audioHandler(task string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return
		}

		file, _, err := r.FormFile("audio_file")
		if err != nil {
			http.Error(w, "Error getting audio file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		audioData, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Error reading audio file", http.StatusInternalServerError)
			return
		}

		source := r.FormValue("source_language")
		target := r.FormValue("target_language")

		log.Printf("🎤 %s request: %d bytes, source=%q target=%q request_id=%s",
			task, len(audioData), source, target, r.Header.Get("X-Request-ID"))

		language := source
		if language == "" {
			language = "en"
		}

		json.NewEncoder(w).Encode(transcriptionResponse{
			Text:             fmt.Sprintf("mock %s of %d audio bytes", task, len(audioData)),
			DetectedLanguage: language,
			ProcessingTime:   0.05,
			Task:             task,
		})
	}
}

func translateTextHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text           string `json:"text"`
		SourceLanguage string `json:"source_language"`
		TargetLanguage string `json:"target_language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	log.Printf("📝 translate_text request: %q %s→%s", req.Text, req.SourceLanguage, req.TargetLanguage)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"translated_text":   fmt.Sprintf("[%s] %s", req.TargetLanguage, req.Text),
		"source_language":   req.SourceLanguage,
		"target_language":   req.TargetLanguage,
		"detected_language": req.SourceLanguage,
		"processing_time":   0.01,
	})
}

func languagesHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"input_languages":  []string{"any (auto-detected)"},
		"output_languages": []string{"en", "de", "fr", "es", "uk", "ja"},
		"note":             "mock backend accepts anything",
	})
}

func main() {
	port := flag.Int("port", 8000, "Port to listen on")
	flag.Parse()

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/transcribe", audioHandler("transcribe"))
	http.HandleFunc("/translate_audio_to_language", audioHandler("translate_to_language"))
	http.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if err := r.ParseMultipartForm(10 << 20); err == nil {
				if target := r.FormValue("target_language"); target != "" && target != "en" {
					http.Error(w, "Whisper can only translate TO English", http.StatusBadRequest)
					return
				}
			}
		}
		audioHandler("translate")(w, r)
	})
	http.HandleFunc("/detect_language", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"detected_language": "en",
			"confidence":        "high",
			"text_preview":      "mock preview",
		})
	})
	http.HandleFunc("/translate_text", translateTextHandler)
	http.HandleFunc("/languages", languagesHandler)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("🚀 Mock recognition backend listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
