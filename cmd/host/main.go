// Command hevcstream-host captures a display, HEVC-encodes it, and
// streams it to a single connecting client, per spec §1-§6.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/leaanthony/clir"
	"github.com/rotisserie/eris"

	"github.com/nullbound/hevcstream/internal/capture"
	"github.com/nullbound/hevcstream/internal/config"
	"github.com/nullbound/hevcstream/internal/control"
	"github.com/nullbound/hevcstream/internal/discovery"
	"github.com/nullbound/hevcstream/internal/logging"
	"github.com/nullbound/hevcstream/internal/pipeline"
	"github.com/nullbound/hevcstream/internal/pixfmt"
)

func main() {
	var configPath, videoAddr, controlAddr string
	var displayID, streamID, mtu, width, height int

	cli := clir.NewCli("hevcstream-host", "Capture, encode, and stream a display over the network", "v0.1.0")

	runCmd := cli.NewSubCommand("run", "Advertise this host and stream to the first connecting client")
	runCmd.StringFlag("config", "Path to an optional config file", &configPath)
	runCmd.StringFlag("listen", "Video datagram listen address", &videoAddr)
	runCmd.StringFlag("control-listen", "Control channel listen address", &controlAddr)
	runCmd.IntFlag("display", "Display ID to capture", &displayID)
	runCmd.IntFlag("stream", "Stream ID announced on the wire", &streamID)
	runCmd.IntFlag("mtu", "Maximum datagram payload size", &mtu)
	runCmd.IntFlag("width", "Captured content width", &width)
	runCmd.IntFlag("height", "Captured content height", &height)
	runCmd.Action(func() error {
		if videoAddr == "" {
			videoAddr = ":40100"
		}
		if controlAddr == "" {
			controlAddr = ":40101"
		}
		if streamID == 0 {
			streamID = 1
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
				return eris.Wrap(err, "host: read config file")
			}
		}
		cfg, err := loader.Load()
		if err != nil {
			return eris.Wrap(err, "host: load config")
		}
		logging.Configure(logging.Options{Diagnostic: cfg.Diagnostic})

		return runHost(hostArgs{
			videoAddr:   videoAddr,
			controlAddr: controlAddr,
			displayID:   uint32(displayID),
			streamID:    uint32(streamID),
			mtu:         mtu,
			width:       width,
			height:      height,
			cfg:         cfg,
		})
	})

	cli.Run()
}

type hostArgs struct {
	videoAddr, controlAddr string
	displayID, streamID    uint32
	mtu, width, height     int
	cfg                    config.Config
}

// runHost accepts exactly one control connection and one video peer,
// per spec §1's "at most one client per host session" non-goal, then
// streams until that connection drops or the process is signaled.
func runHost(a hostArgs) error {
	videoConn, err := net.ListenPacket("udp", a.videoAddr)
	if err != nil {
		return eris.Wrapf(err, "host: listen video %s", a.videoAddr)
	}
	defer videoConn.Close()

	controlListener, err := net.Listen("tcp", a.controlAddr)
	if err != nil {
		return eris.Wrapf(err, "host: listen control %s", a.controlAddr)
	}
	defer controlListener.Close()

	advertiser := discovery.NewAdvertiser(discovery.Capabilities{
		MaxStreams:      1,
		SupportsHEVC:    true,
		SupportsP3:      a.cfg.ColorSpace == pixfmt.ColorSpaceDisplayP3,
		MaxFrameRate:    a.cfg.TargetFrameRate,
		ProtocolVersion: 1,
	})
	if err := advertiser.Start(); err != nil {
		return eris.Wrap(err, "host: start mdns advertiser")
	}
	defer advertiser.Stop()

	fmt.Printf("hevcstream-host: advertising; waiting for a client (video %s, control %s)\n", a.videoAddr, a.controlAddr)

	controlConn, err := controlListener.Accept()
	if err != nil {
		return eris.Wrap(err, "host: accept control connection")
	}
	defer controlConn.Close()

	// The client punches a single datagram to the video socket right
	// after the control handshake so the host learns its ephemeral
	// source address without adding a field to the wire header.
	punch := make([]byte, 1)
	_, clientAddr, err := videoConn.ReadFrom(punch)
	if err != nil {
		return eris.Wrap(err, "host: await client video punch")
	}

	channel := control.NewChannel(controlConn, control.DefaultConfig(), func(err error) {
		fmt.Fprintf(os.Stderr, "hevcstream-host: control channel error: %s\n", err.Error())
	})

	sender := pipeline.NewUDPSender(videoConn, clientAddr, 64)
	defer sender.Close()

	source := capture.NewSyntheticSource()
	p := pipeline.NewHostPipeline(source, nil, sender, channel, nil, pipeline.HostStreamConfig{
		StreamID:         a.streamID,
		MTU:              a.mtu,
		KeyFrameInterval: a.cfg.KeyFrameInterval,
		LatencyMode:      int(a.cfg.LatencyMode),
	})

	sessCfg := capture.SessionConfig{
		Mode:            capture.ModeDisplay,
		DisplayID:       a.displayID,
		OutputScale:     1.0,
		Resolution:      &capture.Resolution{Width: a.width, Height: a.height},
		PixelFormat:     a.cfg.PixelFormat,
		ColorSpace:      a.cfg.ColorSpace,
		TargetFrameRate: a.cfg.TargetFrameRate,
		LatencyMode:     a.cfg.LatencyMode,
	}
	if err := p.Start(sessCfg, a.cfg.PixelFormat, a.cfg.Preheat); err != nil {
		return eris.Wrap(err, "host: start pipeline")
	}
	defer p.Stop()

	fmt.Printf("hevcstream-host: streaming to %s\n", clientAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	return nil
}
