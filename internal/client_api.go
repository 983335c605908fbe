package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatrelay/internal/session"
)

const httpTimeout = 5 * time.Second

func apiListRooms(baseURL string) ([]session.RoomSummary, error) {
	var rooms []session.RoomSummary
	err := getJSON(baseURL+"/api/rooms", &rooms)
	return rooms, err
}

func apiRoomExists(baseURL, room string) (bool, error) {
	endpoint := baseURL + "/exists?" + url.Values{"room": {room}}.Encode()
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Get(endpoint)
	if err != nil {
		return false, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func getJSON(endpoint string, out interface{}) error {
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Get(endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

func httpBaseFromJoinURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}
