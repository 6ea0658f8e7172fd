package bootstrap

import (
	"io"
	"net/http"

	"hotmic/internal/api"
	"hotmic/internal/audio"
	"hotmic/internal/config"
	"hotmic/internal/console"
	"hotmic/internal/domain"
	xlog "hotmic/internal/log"
	"hotmic/internal/ports"
	"hotmic/internal/providers/directives"
	"hotmic/internal/usecase"
)

// Options selects which front ends are assembled.
type Options struct {
	ConfigPath string
	// In is the console input; nil runs headless.
	In  io.Reader
	Out io.Writer
}

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Link       *directives.Link
	Sink       *console.Sink
	Console    *console.Console
	HTTP       *http.Server
	Config     *config.Holder
}

// Build loads configuration and wires all runtime dependencies.
func Build(opts Options) (Services, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return Services{}, err
	}
	xlog.Configure(xlog.Config{Level: cfg.LogLevel})

	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	sink := console.NewSink(out)

	link := directives.NewLink(directives.Config{
		URL:   cfg.Directives.URL,
		Token: cfg.Directives.Token,
	})

	controller := usecase.NewSessionController(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		link,
		sink,
		sink,
		ControllerConfig(cfg),
	)

	holder := config.NewHolder(cfg)
	holder.OnChange(func(next config.Config) {
		controller.UpdateEndpoint(EndpointParams(next))
	})

	services := Services{
		Controller: controller,
		Link:       link,
		Sink:       sink,
		Config:     holder,
	}
	if opts.In != nil {
		services.Console = console.New(opts.In, sink, controller)
	}
	if cfg.HTTP.Addr != "" {
		services.HTTP = api.NewServer(cfg.HTTP.Addr, controller)
	}
	return services, nil
}

// ControllerConfig maps file/env configuration onto the session controller.
func ControllerConfig(cfg config.Config) usecase.Config {
	return usecase.Config{
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
			ChunkSize:   cfg.Audio.ChunkSize,
		},
		Endpoint:            EndpointParams(cfg),
		ExpectSpeechTimeout: cfg.Endpoint.ExpectSpeechTimeout,
	}
}

func EndpointParams(cfg config.Config) domain.EndpointParams {
	return domain.EndpointParams{
		Threshold: cfg.Endpoint.Threshold,
		Silence:   cfg.Endpoint.Silence,
	}
}
