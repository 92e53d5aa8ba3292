package transport

import (
	"io"
	"log"
	"net"
)

// ListenEcho runs the auxiliary echo endpoint. It is not part of the relay
// core — it exists purely so operators can confirm the process is alive
// and accepting TCP connections without speaking the lockstep protocol.
func ListenEcho(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("echo transport listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("echo transport: accept error: %v", err)
			return err
		}
		go func(c net.Conn) {
			defer c.Close()
			if _, err := io.Copy(c, c); err != nil {
				return
			}
		}(conn)
	}
}
