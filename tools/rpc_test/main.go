package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

const sendTimeout = 10 * time.Second

// 手工敲节点websocket API用的小工具：
//
//	rpc_test -method getMaxBlockHeight
//	rpc_test -method getAccount -params '{"walletAddress":"ldpos313..."}'
func main() {
	var addr, method, params string
	flag.StringVar(&addr, "addr", "127.0.0.1:26657", "RPC listen address of the node")
	flag.StringVar(&method, "method", "status", "RPC method to call")
	flag.StringVar(&params, "params", "{}", "JSON object with the method parameters")
	flag.Parse()

	c, _, err := connect(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer c.Close()

	c.SetWriteDeadline(time.Now().Add(sendTimeout))
	err = c.WriteJSON(jsonrpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      jsonrpc.JSONRPCStringID("rpc_test"),
		Method:  method,
		Params:  json.RawMessage(params),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", method, err)
		os.Exit(1)
	}

	c.SetReadDeadline(time.Now().Add(sendTimeout))
	response := new(jsonrpc.RPCResponse)
	if err := c.ReadJSON(response); err != nil {
		fmt.Fprintf(os.Stderr, "read response: %v\n", err)
		os.Exit(1)
	}
	if response.Error != nil {
		fmt.Fprintln(os.Stderr, response.Error)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, response.Result, "", "  "); err != nil {
		fmt.Println(string(response.Result))
		return
	}
	fmt.Println(pretty.String())
}

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}
