// Package mqttctl mirrors the HTTP control surface over MQTT: the
// animation topic installs GIFs, the cmd topic carries text commands
// and acks go to the status topic.
package mqttctl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/ledgrid/matrixd/internal/config"
	"github.com/ledgrid/matrixd/internal/gifdec"
	"github.com/ledgrid/matrixd/internal/playback"
)

type Client struct {
	eng    *playback.Engine
	topics config.MQTTTopics
	cli    mqtt.Client

	// publish is swappable so handlers can be tested without a broker.
	publish func(msg string)
}

func New(cfg config.MQTTCfg, eng *playback.Engine) *Client {
	c := &Client{eng: eng, topics: cfg.Topics}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID("matrixd").
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetOnConnectHandler(c.onConnect)
	c.cli = mqtt.NewClient(opts)
	c.publish = c.publishStatus
	return c
}

// Connect dials the broker; subscriptions happen in the connect
// handler so they survive reconnects.
func (c *Client) Connect() error {
	token := c.cli.Connect()
	token.Wait()
	return token.Error()
}

func (c *Client) Disconnect() {
	if c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	log.Info().Str("animation", c.topics.Animation).Str("cmd", c.topics.Cmd).Msg("mqtt connected")
	client.Subscribe(c.topics.Animation, 0, func(_ mqtt.Client, m mqtt.Message) {
		c.handleAnimation(m.Payload())
	})
	client.Subscribe(c.topics.Cmd, 0, func(_ mqtt.Client, m mqtt.Message) {
		c.handleCommand(m.Payload())
	})
	c.publish("connected")
}

func (c *Client) publishStatus(msg string) {
	if c.topics.Status == "" {
		return
	}
	c.cli.Publish(c.topics.Status, 1, false, msg)
}

// handleAnimation installs a GIF delivered raw or base64-encoded.
func (c *Client) handleAnimation(payload []byte) {
	c.publish(fmt.Sprintf("received:%d", len(payload)))
	res, err := c.eng.ReplaceAnimation(gifdec.Normalize(payload))
	if err != nil {
		hdr := payload
		if len(hdr) > 16 {
			hdr = hdr[:16]
		}
		c.publish(fmt.Sprintf("error:play:%v;hdr=%x", err, hdr))
		return
	}
	c.publish(fmt.Sprintf("playing:%d", res.Frames))
}

// handleCommand executes a text command from the cmd topic. Brightness
// values are clamped into range rather than rejected, matching remote
// senders that cannot read a response body.
func (c *Client) handleCommand(payload []byte) {
	txt := strings.ToLower(strings.TrimSpace(string(payload)))
	switch {
	case strings.HasPrefix(txt, "brightness:"):
		v, err := strconv.Atoi(strings.TrimPrefix(txt, "brightness:"))
		if err != nil {
			c.publish("error:brightness:" + err.Error())
			return
		}
		if v < 1 {
			v = 1
		}
		if v > 100 {
			v = 100
		}
		if err := c.eng.SetBrightness(v); err != nil {
			c.publish("error:brightness:" + err.Error())
			return
		}
		c.publish(fmt.Sprintf("brightness:%d", v))
	case txt == "clear", txt == "stop":
		c.eng.Clear()
		c.publish("cleared")
	case txt == "ping":
		c.publish("pong")
	default:
		c.publish("unknown_cmd:" + txt)
	}
}
