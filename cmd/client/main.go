// Command hevcstream-client connects to a hevcstream-host, decodes its
// video stream, and forwards input events back to it, per spec §1-§7.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/leaanthony/clir"
	"github.com/rotisserie/eris"

	"github.com/nullbound/hevcstream/internal/clientpath"
	"github.com/nullbound/hevcstream/internal/config"
	"github.com/nullbound/hevcstream/internal/control"
	"github.com/nullbound/hevcstream/internal/discovery"
	"github.com/nullbound/hevcstream/internal/logging"
	"github.com/nullbound/hevcstream/internal/pipeline"
	"github.com/nullbound/hevcstream/internal/pixfmt"
)

func main() {
	var hostAddr, videoAddr, configPath, deviceName string
	var streamID, width, height int

	cli := clir.NewCli("hevcstream-client", "Connect to a hevcstream-host and render its stream", "v0.1.0")

	discoverCmd := cli.NewSubCommand("discover", "Browse the local network for advertised hosts")
	discoverCmd.Action(func() error {
		return runDiscover()
	})

	connectCmd := cli.NewSubCommand("connect", "Connect to a host by address and stream until disconnected")
	connectCmd.StringFlag("host", "Host address (ip:port) of its control listener", &hostAddr)
	connectCmd.StringFlag("video", "Local video datagram bind address", &videoAddr)
	connectCmd.StringFlag("config", "Path to an optional config file", &configPath)
	connectCmd.StringFlag("name", "Device name announced in the hello handshake", &deviceName)
	connectCmd.IntFlag("stream", "Stream ID expected on the wire", &streamID)
	connectCmd.IntFlag("width", "Declared content width until the host announces otherwise", &width)
	connectCmd.IntFlag("height", "Declared content height until the host announces otherwise", &height)
	connectCmd.Action(func() error {
		if hostAddr == "" {
			return eris.New("client: --host is required")
		}
		if videoAddr == "" {
			videoAddr = ":0"
		}
		if streamID == 0 {
			streamID = 1
		}
		if deviceName == "" {
			deviceName, _ = os.Hostname()
		}
		if width == 0 {
			width = 1280
		}
		if height == 0 {
			height = 720
		}

		loader := config.NewLoader()
		if configPath != "" {
			loader.SetConfigFile(configPath)
			if err := loader.ReadConfigFile(); err != nil {
				return eris.Wrap(err, "client: read config file")
			}
		}
		cfg, err := loader.Load()
		if err != nil {
			return eris.Wrap(err, "client: load config")
		}
		logging.Configure(logging.Options{Diagnostic: cfg.Diagnostic})

		return runClient(clientArgs{
			hostAddr:    hostAddr,
			videoAddr:   videoAddr,
			deviceName:  deviceName,
			streamID:    uint32(streamID),
			width:       width,
			height:      height,
		})
	})

	cli.Run()
}

func runDiscover() error {
	browser := discovery.NewBrowser()
	if err := browser.Start(); err != nil {
		return eris.Wrap(err, "client: start mdns browser")
	}
	defer browser.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hosts, err := browser.Search(ctx)
	if err != nil {
		return eris.Wrap(err, "client: search")
	}
	for _, h := range hosts {
		fmt.Printf("%v  maxFps=%v hevc=%v p3=%v\n", h.Service, h.Capabilities.MaxFrameRate, h.Capabilities.SupportsHEVC, h.Capabilities.SupportsP3)
	}
	return nil
}

type clientArgs struct {
	hostAddr, videoAddr, deviceName string
	streamID                        uint32
	width, height                   int
}

// runClient dials the host's control listener, completes the hello
// handshake, punches the video socket so the host learns this
// client's ephemeral address, and streams until the control channel
// drops or the process is signaled.
func runClient(a clientArgs) error {
	controlConn, err := net.Dial("tcp", a.hostAddr)
	if err != nil {
		return eris.Wrapf(err, "client: dial control %s", a.hostAddr)
	}
	defer controlConn.Close()

	videoConn, err := net.ListenPacket("udp", a.videoAddr)
	if err != nil {
		return eris.Wrapf(err, "client: listen video %s", a.videoAddr)
	}
	defer videoConn.Close()

	channel := control.NewChannel(controlConn, control.DefaultConfig(), func(err error) {
		fmt.Fprintf(os.Stderr, "hevcstream-client: control channel error: %s\n", err.Error())
	})
	channel.Run()
	defer channel.Close()

	if err := channel.Send(control.Envelope{Type: control.MsgHello, Body: control.Hello{
		DeviceName:      a.deviceName,
		DeviceType:      control.DeviceOther,
		ProtocolVersion: 1,
	}.Encode()}); err != nil {
		return eris.Wrap(err, "client: send hello")
	}

	hostUDPAddr, err := videoPeerAddr(a.hostAddr)
	if err != nil {
		return eris.Wrap(err, "client: resolve host video address")
	}
	if _, err := videoConn.WriteTo([]byte{0}, hostUDPAddr); err != nil {
		return eris.Wrap(err, "client: punch video socket")
	}

	cache := clientpath.NewCache()
	p := pipeline.NewClientPipeline(cache, channel)
	render := p.RegisterStream(pipeline.ClientStreamConfig{
		StreamID: a.streamID,
		Format:   pixfmt.BGRA8,
		Width:    a.width,
		Height:   a.height,
	}, clientpath.NewSoftwareDecoder())

	receiver := pipeline.NewUDPReceiver(videoConn, p.HandleDatagram)
	receiver.Start()
	defer receiver.Stop()

	go renderLoop(render)

	fmt.Printf("hevcstream-client: connected to %s\n", a.hostAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	return nil
}

// renderLoop mimics the pull-render callback spec §4.7 describes: a
// short, non-blocking poll driven by a display-rate ticker rather than
// by the decode thread.
func renderLoop(render *clientpath.RenderTrigger) {
	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()
	for range ticker.C {
		// A real renderer would blit entry.PixelBuffer to the screen
		// here; this CLI has no display surface to draw into.
		render.Tick()
	}
}

// videoPeerAddr derives the host's video socket address from its
// control address, since the hello handshake carries no explicit
// video port field; it assumes the host's default 40100 video port.
func videoPeerAddr(hostControlAddr string) (*net.UDPAddr, error) {
	host, _, err := net.SplitHostPort(hostControlAddr)
	if err != nil {
		return nil, err
	}
	return net.ResolveUDPAddr("udp", net.JoinHostPort(host, "40100"))
}
