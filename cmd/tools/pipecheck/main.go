package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// pipecheck 用于手工验证语音会话链路。
// It dials the voice websocket, pushes either a typed message or a synthetic
// tone, and prints everything the server multiplexes back until the reply
// ends.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	addr := flag.String("addr", "ws://localhost:8080/api/voice/ws", "服务端 WebSocket 地址")
	mode := flag.String("mode", "text", "测试模式: text 或 tone")
	text := flag.String("text", "Hello, can you hear me?", "text 模式下发送的消息")
	freq := flag.Float64("freq", 440, "tone 模式下正弦波频率 (Hz)")
	duration := flag.Duration("duration", 500*time.Millisecond, "tone 模式下语音段时长")
	rate := flag.Int("rate", 16000, "tone 模式下采样率")
	timeout := flag.Duration("timeout", 45*time.Second, "等待回复的超时时间")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		log.Fatalf("连接失败: %v", err)
	}
	defer conn.Close()
	log.Printf("connected to %s", *addr)

	switch *mode {
	case "text":
		if err := conn.WriteMessage(websocket.TextMessage, []byte(*text)); err != nil {
			log.Fatalf("发送文本失败: %v", err)
		}
		log.Printf("sent text: %q", *text)
	case "tone":
		if err := sendTone(conn, *freq, *duration, *rate); err != nil {
			log.Fatalf("发送音频失败: %v", err)
		}
		log.Printf("sent %.0f Hz tone, %v at %d Hz plus a closing silent frame", *freq, *duration, *rate)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=text 或 -mode=tone 指定测试模式")
	}

	readReplies(conn, *timeout)
}

// sendTone streams one voiced frame followed by one silent frame, enough to
// close an utterance on the server side.
func sendTone(conn *websocket.Conn, freq float64, duration time.Duration, rate int) error {
	voiced := make([]float32, int(float64(rate)*duration.Seconds()))
	for i := range voiced {
		voiced[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(rate, voiced)); err != nil {
		return err
	}
	silent := make([]float32, rate/10)
	return conn.WriteMessage(websocket.BinaryMessage, encodeFrame(rate, silent))
}

func encodeFrame(rate int, samples []float32) []byte {
	buf := make([]byte, 4+4*len(samples))
	binary.LittleEndian.PutUint32(buf, uint32(rate))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(s))
	}
	return buf
}

func readReplies(conn *websocket.Conn, timeout time.Duration) {
	conn.SetReadDeadline(time.Now().Add(timeout))

	var reply strings.Builder
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("读取回复失败: %v", err)
		}

		if messageType == websocket.BinaryMessage {
			log.Printf("audio clip: %d bytes", len(payload))
			continue
		}

		msg := string(payload)
		switch {
		case msg == "A<EOM>":
			fmt.Printf("\nassistant: %s\n", reply.String())
			log.Print("end of message")
			return
		case strings.HasPrefix(msg, "A"):
			reply.WriteString(strings.TrimPrefix(msg, "A"))
		case strings.HasPrefix(msg, "U"):
			log.Printf("recognized: %q", strings.TrimPrefix(msg, "U"))
		default:
			log.Printf("unexpected text message: %q", msg)
		}
	}
}
