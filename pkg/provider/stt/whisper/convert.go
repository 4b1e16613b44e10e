package whisper

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lingualoop/lingualoop/pkg/audio"
	"github.com/lingualoop/lingualoop/pkg/provider/stt"
)

// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
// units) below which a recording is considered silent. The maximum possible
// value for 16-bit audio is 32 767; 300 corresponds to near-silence.
const defaultRMSThreshold = 300.0

// nonSpeech matches the bracketed and parenthesised annotations whisper.cpp
// emits for non-speech audio, e.g. "[BLANK_AUDIO]", "(wind blowing)".
var nonSpeech = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

// canonicalPCM decodes a WAV recording and converts it to 16 kHz mono PCM.
// It returns stt.ErrUnintelligible when the recording is empty or its energy
// is below threshold.
func canonicalPCM(wav []byte, threshold float64) ([]byte, time.Duration, error) {
	w, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, 0, fmt.Errorf("whisper: decode audio: %w", err)
	}
	pcm := w.Canonical()
	dur := time.Duration(w.Duration() * float64(time.Second))
	if len(pcm) < 2 || audio.RMS(pcm) < threshold {
		return nil, dur, fmt.Errorf("whisper: %w: recording is silent", stt.ErrUnintelligible)
	}
	return pcm, dur, nil
}

// cleanText strips non-speech annotations and collapses whitespace.
func cleanText(text string) string {
	text = nonSpeech.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// keywordPrompt turns recognition hints into an initial prompt, which is how
// whisper biases decoding towards expected vocabulary.
func keywordPrompt(keywords []string) string {
	var kept []string
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			kept = append(kept, k)
		}
	}
	return strings.Join(kept, ", ")
}
