package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const humanText = "We drove four hours to Bandung. The booth was tiny! Our robot fell over twice during setup, " +
	"so Dimas rebuilt the gearbox on the floor with borrowed screws while I argued with the judges about " +
	"the schedule. Finals went fine. Third place."

const templatedText = "Furthermore, this experience plays a crucial role in my growth. Moreover, it is important to note " +
	"that teamwork is pivotal. Additionally, the event was a testament to holistic learning. In conclusion, " +
	"it helped me delve into leadership. Furthermore, I will leverage this seamless experience in the future."

func TestHeuristicIsDeterministic(t *testing.T) {
	h := NewHeuristic()
	first, err := h.Classify(context.Background(), Input{Text: humanText})
	require.NoError(t, err)
	second, err := h.Classify(context.Background(), Input{Text: humanText})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHeuristicRanksTemplatedTextHigher(t *testing.T) {
	h := NewHeuristic()
	human, err := h.Classify(context.Background(), Input{Text: humanText})
	require.NoError(t, err)
	templated, err := h.Classify(context.Background(), Input{Text: templatedText})
	require.NoError(t, err)

	assert.Greater(t, templated.Risk, human.Risk)
	assert.GreaterOrEqual(t, templated.Risk, 0)
	assert.LessOrEqual(t, templated.Risk, 100)
}

func TestHeuristicRejectsShortText(t *testing.T) {
	_, err := NewHeuristic().Classify(context.Background(), Input{Text: "too short"})
	assert.ErrorIs(t, err, ErrInsufficientText)
}

func TestParseResponseClamps(t *testing.T) {
	res, err := parseResponse(`{"probability": 1.7, "reason": "uniform"}`)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Risk)

	res, err = parseResponse(`{"probability": 0.42}`)
	require.NoError(t, err)
	assert.Equal(t, 42, res.Risk)

	_, err = parseResponse("not json")
	assert.Error(t, err)
}

func TestOpenAIClassifierAgainstStubServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": `{"probability":0.9,"reason":"stock phrases"}`},
			}},
		})
	}))
	defer server.Close()

	c, err := NewOpenAIClassifier(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	res, err := c.Classify(context.Background(), Input{Title: "Robotics", Text: templatedText})
	require.NoError(t, err)
	assert.Equal(t, 90, res.Risk)
	assert.Equal(t, "gpt-4o-mini", res.Model)
}

func TestOpenAIClassifierHonoursDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c, err := NewOpenAIClassifier(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Classify(ctx, Input{Text: templatedText})
	assert.Error(t, err)
}

func TestNewOpenAIClassifierRequiresKey(t *testing.T) {
	_, err := NewOpenAIClassifier(OpenAIConfig{})
	assert.Error(t, err)
}
