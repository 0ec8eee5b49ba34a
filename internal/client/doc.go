// Package client is a Go client for the fieldsync wire protocol, built on
// gorilla/websocket.
//
//	c, err := client.Dial(ctx, "ws://localhost:8080/ws", client.Options{})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if err := c.Join("Ann"); err != nil {
//	    return err
//	}
//	for msg := range c.Messages() {
//	    fmt.Println(msg.Type())
//	}
package client
