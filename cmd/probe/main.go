package main

import (
	"collab-realtime/domain/event"
	"collab-realtime/observability"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"
)

// probe is a manual client: it joins a room and prints everything it receives.
func main() {
	addr := flag.String("addr", "localhost:3001", "Server host:port")
	userID := flag.String("user", "probe", "User id sent with user:join")
	email := flag.String("email", "probe@localhost", "Email sent with user:join")
	room := flag.String("room", "", "Room to join")
	message := flag.String("send", "", "Text message to send once joined")
	stats := flag.Bool("stats", false, "Print /debug/stats and exit")
	flag.Parse()

	if *stats {
		if err := printStats(*addr); err != nil {
			color.Error.Println(err)
			os.Exit(1)
		}
		return
	}
	if err := listen(*addr, *userID, *email, *room, *message); err != nil {
		color.Error.Println(err)
		os.Exit(1)
	}
}

func listen(addr, userID, email, room, message string) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()
	color.Info.Printf("Connected to %s\n", u.String())

	send := func(name event.Name, data any) error {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		return conn.WriteJSON(event.Envelope{Event: name, Data: raw})
	}
	if err := send(event.UserJoin, map[string]string{"userId": userID, "email": email}); err != nil {
		return err
	}
	if room != "" {
		if err := send(event.RoomJoin, room); err != nil {
			return err
		}
		if message != "" {
			if err := send(event.MessageSend, map[string]any{"roomId": room, "message": map[string]string{"text": message}}); err != nil {
				return err
			}
		}
	}

	done := make(chan error, 1)
	go func() {
		for {
			var env event.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				done <- err
				return
			}
			printEnvelope(env)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	select {
	case <-interrupt:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return nil
	case err := <-done:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return nil
		}
		return err
	}
}

func printEnvelope(env event.Envelope) {
	stamp := color.Gray.Sprint(time.Now().Format("15:04:05"))
	var style color.Color
	switch env.Event {
	case event.UserStatusChanged:
		style = color.Cyan
	case event.UserJoinedRoom, event.UserLeftRoom:
		style = color.Magenta
	case event.UserTyping, event.UserStoppedTyping:
		style = color.Gray
	default:
		style = color.Green
	}
	fmt.Printf("%s %s %s\n", stamp, style.Sprint(env.Event), string(env.Data))
}

func printStats(addr string) error {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/debug/stats")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	var stats observability.MonitoringStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk([][]string{
		{"Connections", strconv.Itoa(stats.Connections)},
		{"Identified connections", strconv.Itoa(stats.IdentifiedConnections)},
		{"Rooms", strconv.Itoa(stats.Rooms)},
		{"Online users", strconv.Itoa(stats.OnlineUsers)},
		{"Events delivered", strconv.FormatUint(stats.EventsDelivered, 10)},
		{"Events dropped", strconv.FormatUint(stats.EventsDropped, 10)},
		{"Events rejected", strconv.FormatUint(stats.EventsRejected, 10)},
		{"Commands dropped", strconv.FormatUint(stats.CommandsDropped, 10)},
		{"Disconnects deferred", strconv.FormatUint(stats.DisconnectsDeferred, 10)},
		{"Slow consumers closed", strconv.FormatUint(stats.SlowConsumerClosed, 10)},
		{"RSS (bytes)", strconv.FormatUint(stats.Process.RSSBytes, 10)},
		{"CPU (%)", strconv.FormatFloat(stats.Process.CPUPercent, 'f', 2, 64)},
		{"Goroutines", strconv.Itoa(stats.Goroutines)},
		{"Sampled at", stats.SampledAt.Format(time.RFC3339)},
	})
	table.Render()
	return nil
}
