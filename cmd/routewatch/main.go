// Command routewatch optimizes and saves a demo route, then prints its events
// over the WebSocket stream while advancing it to active and completed.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"wasteroute/internal/integrations"
	"wasteroute/internal/integrations/csvfile"
	"wasteroute/internal/model"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const demoBins = `{"algorithm":"two_opt","save_route":true,"crew_id":"crew-demo",
"start":{"latitude":21.1458,"longitude":79.0882},
"bins":[
 {"id":"BIN-001","latitude":21.1466,"longitude":79.0889,"fill_level_percent":85},
 {"id":"BIN-002","latitude":21.1520,"longitude":79.0810,"fill_level_percent":40,"priority":"low"},
 {"id":"BIN-003","latitude":21.1390,"longitude":79.0950,"fill_level_percent":95,"priority":"high"},
 {"id":"BIN-004","latitude":21.1600,"longitude":79.0700,"fill_level_percent":60}
]}`

func main() {
	addr := flag.String("addr", "localhost:8080", "API host:port")
	wait := flag.Duration("wait", 2*time.Second, "how long to print events after the last status change")
	binsPath := flag.String("bins", "", "CSV of bins to route instead of the built-in demo set")
	minFill := flag.Float64("min-fill", 0, "skip bins below this fill level (CSV input only)")
	algo := flag.String("algorithm", "two_opt", "greedy, priority, hybrid or two_opt (CSV input only)")
	flag.Parse()
	base := "http://" + *addr

	body := []byte(demoBins)
	if *binsPath != "" {
		b, err := csvRequest(*binsPath, *minFill, *algo)
		if err != nil {
			log.Fatal(err)
		}
		body = b
	}

	resp, err := http.Post(base+"/v1/routes/optimize", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("optimize: unexpected status %d", resp.StatusCode)
	}
	var route struct {
		ID        string  `json:"route_id"`
		Distance  float64 `json:"total_distance_km"`
		Waypoints []struct {
			BinID string `json:"bin_id"`
		} `json:"waypoints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&route); err != nil {
		log.Fatal(err)
	}
	log.WithFields(log.Fields{"route": route.ID, "distance_km": route.Distance, "stops": len(route.Waypoints)}).Info("route saved")

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/v1/routes/" + route.ID + "/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial: ", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Debugf("read: %v", err)
				return
			}
			log.Infof("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	time.Sleep(300 * time.Millisecond)
	for _, status := range []string{"active", "completed"} {
		if err := patchStatus(base, route.ID, status); err != nil {
			log.WithError(err).Warn("status update")
		}
	}

	select {
	case <-time.After(*wait):
	case <-done:
	}
}

func patchStatus(base, id, status string) error {
	body := fmt.Sprintf(`{"status":%q}`, status)
	req, err := http.NewRequest(http.MethodPatch, base+"/v1/routes/"+id+"/status", bytes.NewReader([]byte(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("PATCH %s: HTTP %d", status, resp.StatusCode)
	}
	return nil
}

func csvRequest(path string, minFill float64, algo string) ([]byte, error) {
	var src integrations.BinSource = csvfile.Adapter{Path: path}
	bins, err := src.FetchBins(context.Background())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name(), err)
	}
	bins = integrations.FilterByFill(bins, minFill)
	log.WithFields(log.Fields{"source": src.Name(), "bins": len(bins)}).Info("bins loaded")
	return json.Marshal(model.OptimizeRequest{Bins: bins, Algorithm: algo, SaveRoute: true, CrewID: "crew-demo"})
}
