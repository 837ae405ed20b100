// Command emberd is a minimal embedding example: it wires a dispatch
// resolver with one static mapping and a small RPC service behind
// another, then starts the server. It exists to exercise the module's
// public surface end-to-end, not as a production daemon.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/embercore/ember/pkg/ember/dispatch"
	"github.com/embercore/ember/pkg/ember/rpc"
	"github.com/embercore/ember/pkg/ember/server"
	"github.com/embercore/ember/pkg/ember/wire"
)

// echoService is exposed over RPC at /api/<method>.
type echoService struct{}

func (echoService) Echo(req rpc.RequestParam, message string) (string, error) {
	return message, nil
}

func (echoService) Ping() string {
	return "pong"
}

func main() {
	resolver := dispatch.New()

	svc := rpc.New(echoService{}, rpc.DefaultCodec)
	resolver.Add(dispatch.Mapping{Path: "/api", Handler: svc.Handle})

	resolver.Add(dispatch.Mapping{Handler: indexHandler})

	cfg := server.DefaultConfig()
	cfg.Addr = addr()
	cfg.Handler = resolver.Handle

	srv := server.New(cfg)
	log.Printf("emberd listening on %s", cfg.Addr)
	if err := srv.StartListening(); err != nil {
		log.Fatal(err)
	}
}

func indexHandler(req *wire.Request) (*wire.Response, error) {
	body := fmt.Sprintf("ember core: %s %s\n", req.Method, req.URL.Path())
	resp := wire.NewResponse(200).WithBytes([]byte(body))
	resp.Header.SetString("Content-Type", "text/plain; charset=utf-8")
	return resp, nil
}

func addr() string {
	if a := os.Getenv("EMBERD_ADDR"); a != "" {
		return a
	}
	return ":8080"
}
