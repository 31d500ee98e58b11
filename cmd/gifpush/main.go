// gifpush uploads a local GIF to a running matrixd, over HTTP or by
// publishing to the MQTT animation topic.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func main() {
	var (
		file   = flag.String("file", "", "path to the GIF to upload")
		url    = flag.String("url", "http://localhost:9090", "matrixd base URL")
		broker = flag.String("broker", "", "MQTT broker URL; when set, publish instead of HTTP")
		topic  = flag.String("topic", "home/ledmatrix/animation", "MQTT animation topic")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: gifpush -file anim.gif [-url http://host:9090 | -broker tcp://host:1883]")
		os.Exit(2)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}

	if *broker != "" {
		if err := publishMQTT(*broker, *topic, data); err != nil {
			fmt.Fprintln(os.Stderr, "publish:", err)
			os.Exit(1)
		}
		fmt.Printf("published %d bytes to %s\n", len(data), *topic)
		return
	}

	resp, err := http.Post(*url+"/upload", "image/gif", bytes.NewReader(data))
	if err != nil {
		fmt.Fprintln(os.Stderr, "upload:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s %s\n", resp.Status, bytes.TrimSpace(body))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

func publishMQTT(broker, topic string, data []byte) error {
	cli := mqtt.NewClient(mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("gifpush").
		SetConnectTimeout(10 * time.Second))
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer cli.Disconnect(250)
	token := cli.Publish(topic, 1, false, data)
	token.Wait()
	return token.Error()
}
