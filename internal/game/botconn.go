package game

import "errors"

// BotConn is an in-process transport endpoint for the development bot
// driver: a client without a websocket. Events carries everything a real
// client would receive.
type BotConn struct {
	PlayerID string
	Events   <-chan any

	room   *Room
	client *Client
}

// ConnectBot joins a simulated player to the room. Fails outside the lobby
// or when the room is full, like any other join.
func (r *Room) ConnectBot(name string) (*BotConn, error) {
	c := &Client{send: make(chan any, 64)}
	r.join(c, name, true)
	if c.playerID == "" {
		c.closeSend()
		return nil, errors.New("bot join rejected")
	}

	return &BotConn{
		PlayerID: c.playerID,
		Events:   c.send,
		room:     r,
		client:   c,
	}, nil
}

func (bc *BotConn) Send(msg ClientMessage) {
	bc.room.Dispatch(bc.client, msg)
}

func (bc *BotConn) Close() {
	bc.room.disconnect(bc.client)
}
