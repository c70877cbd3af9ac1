package registry

import (
	"fmt"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/querylab/analyst/conf"
)

// Register announces the service to Consul and returns a deregister
// function for shutdown.
func Register(cfg conf.Registry, name string, baseURL string, port int) (func(), error) {
	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Consul.Address
	if cfg.Consul.Scheme != "" {
		apiCfg.Scheme = cfg.Consul.Scheme
	}
	if cfg.Consul.Token != "" {
		apiCfg.Token = cfg.Consul.Token
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, err
	}

	healthURL := fmt.Sprintf("http://localhost:%d/healthz", port)
	if baseURL != "" {
		healthURL = baseURL + "/healthz"
	}

	id := fmt.Sprintf("%s-%d", name, port)
	registration := &api.AgentServiceRegistration{
		ID:   id,
		Name: name,
		Port: port,
		Tags: []string{"http"},
		Check: &api.AgentServiceCheck{
			HTTP:                           healthURL,
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}

	if err := client.Agent().ServiceRegister(registration); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("registry", "consul"),
		zap.String("service", id),
	)
	log.Info("service registered")

	deregister := func() {
		if err := client.Agent().ServiceDeregister(id); err != nil {
			log.Error(err.Error())
			return
		}

		log.Info("service deregistered")
	}

	return deregister, nil
}
