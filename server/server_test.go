package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"policyiter/models"
	"policyiter/reinforcement"
	"policyiter/server/fastview"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

func get(url string) (int, string) {
	resp, err := http.Get(url)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	So(err, ShouldBeNil)
	return resp.StatusCode, string(body)
}

func TestServer(t *testing.T) {
	Convey("Given a server for the 4x4 lake", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		lake, err := models.Convert(models.Lake4x4, false)
		So(err, ShouldBeNil)
		srv, err := NewServer(ctx, "localhost:0", lake, log.New(io.Discard, "", 0))
		So(err, ShouldBeNil)
		ts := httptest.NewServer(srv.Handler())
		Reset(func() {
			ts.Close()
			cancel()
		})

		Convey("The index page shows the starting frame", func() {
			status, body := get(ts.URL + "/")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, `id="status-iteration">0<`)
			So(body, ShouldContainSubstring, `id="0-0-value-text"`)
		})

		Convey("The index page shows the latest published frame", func() {
			srv.Publish(ctx, reinforcement.Progress{Iteration: 1})
			srv.Publish(ctx, reinforcement.Progress{Iteration: 2, Status: reinforcement.Converged})
			_, body := get(ts.URL + "/")
			So(body, ShouldContainSubstring, `id="status-iteration">2<`)
			So(body, ShouldContainSubstring, `id="status-state">converged<`)
		})

		Convey("Publishing never blocks the solver", func() {
			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 1; i <= 50; i++ {
					srv.Publish(ctx, reinforcement.Progress{Iteration: i})
				}
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				So("publish blocked", ShouldBeEmpty)
			}
		})

		Convey("Unknown routes are not found", func() {
			status, _ := get(ts.URL + "/missing")
			So(status, ShouldEqual, http.StatusNotFound)
		})

		Convey("Websocket clients receive published progress", func() {
			wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			srv.Publish(ctx, reinforcement.Progress{Iteration: 7, Status: reinforcement.Converged})

			So(conn.SetReadDeadline(time.Now().Add(5*time.Second)), ShouldBeNil)
			iteration := ""
			for iteration == "" {
				updates := []fastview.EleUpdate{}
				if err := conn.ReadJSON(&updates); err != nil {
					break
				}
				for _, update := range updates {
					if update.EleId == "status-iteration" {
						iteration = update.Ops[0].Value
					}
				}
			}
			So(iteration, ShouldEqual, "7")
		})
	})
}
