package progress

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades r to a websocket connection and relays that
// subscriber's events to it until the connection drops, at which point
// it unsubscribes — the teacher's Hub.ServeWS/writePump/readPump split,
// scaled from one shared client to one per connection.
func (b *Bus) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	id := b.Subscribe()
	ch, _ := b.Stream(id)

	go func() {
		defer conn.Close()
		for message := range ch {
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				b.Unsubscribe(id)
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage, []byte{})
	}()

	go func() {
		defer b.Unsubscribe(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
