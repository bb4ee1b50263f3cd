package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

var baseURL = "http://localhost:8080"

func main() {
	if v := os.Getenv("FOLIO_URL"); v != "" {
		baseURL = v
	}
	// Wait for server to start
	time.Sleep(2 * time.Second)

	checkEndpoint("GET", "/health", nil, 200)

	run := refresh()
	fmt.Printf("Refresh run: %s\n", run)

	for _, name := range []string{"gains", "gains_percent", "values", "prices"} {
		checkEndpoint("GET", "/series/"+name, nil, 200)
	}
	checkEndpoint("GET", "/holdings/All", nil, 200)
	checkEndpoint("GET", "/holdings/1W", nil, 200)
	checkEndpoint("GET", "/holdings/2W", nil, 404)
	checkEndpoint("GET", "/summary/YTD", nil, 200)
	checkEndpoint("GET", "/exposure", nil, 200)
	checkEndpoint("GET", "/transactions", nil, 200)
	checkEndpoint("GET", "/issues", nil, 200)
	checkEndpoint("GET", "/refreshes?limit=3", nil, 200)

	checkEndpoint("POST", "/prices", map[string]string{
		"asset_id": "e2e-manual",
		"date":     time.Now().UTC().Format("2006-01-02"),
		"price":    "100.5",
	}, 201)
	checkEndpoint("POST", "/prices", map[string]string{"asset_id": "e2e-manual", "date": "yesterday", "price": "1"}, 400)

	fmt.Println("ALL TESTS PASSED")
}

func checkEndpoint(method, path string, body interface{}, expectedStatus int) []byte {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %.300s\n", string(respBody))
	return respBody
}

func refresh() string {
	fmt.Println("Refreshing portfolio...")
	body := checkEndpoint("POST", "/refresh", nil, 200)
	var res map[string]interface{}
	if err := json.Unmarshal(body, &res); err != nil {
		log.Fatalf("Decode refresh response failed: %v", err)
	}
	id, _ := res["run_id"].(string)
	if id == "" {
		log.Fatalf("Refresh returned no run id: %s", string(body))
	}
	return id
}
