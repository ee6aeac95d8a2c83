package delivery

import (
	"fmt"
	"strings"

	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
)

// Selector picks a courier provider per destination country: the domestic
// country routes to Shipbubble, everything else to Uber Direct. Only
// registered (credentialed) providers are considered available.
type Selector struct {
	providers       map[enums.DeliveryProvider]Provider
	domesticCountry string
}

// NewSelector registers the available provider adapters.
func NewSelector(cfg config.DeliveryConfig, providers ...Provider) (*Selector, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one delivery provider is required")
	}
	registry := make(map[enums.DeliveryProvider]Provider, len(providers))
	for _, provider := range providers {
		if provider == nil {
			return nil, fmt.Errorf("nil delivery provider")
		}
		name := provider.Name()
		if !name.IsValid() {
			return nil, fmt.Errorf("unknown delivery provider %q", name)
		}
		if _, dup := registry[name]; dup {
			return nil, fmt.Errorf("duplicate delivery provider %q", name)
		}
		registry[name] = provider
	}
	country := strings.ToUpper(strings.TrimSpace(cfg.DomesticCountry))
	if country == "" {
		country = "NG"
	}
	return &Selector{providers: registry, domesticCountry: country}, nil
}

// ForCountry returns the provider serving the destination country.
func (s *Selector) ForCountry(country string) (Provider, error) {
	name := s.providerFor(country)
	provider, ok := s.providers[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("delivery provider %s is not configured", name))
	}
	return provider, nil
}

// ByName returns a registered provider by its identifier.
func (s *Selector) ByName(name enums.DeliveryProvider) (Provider, error) {
	provider, ok := s.providers[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("delivery provider %s is not configured", name))
	}
	return provider, nil
}

// IsAvailable reports whether the named provider is registered. It agrees
// with Available by construction: both read the same registry.
func (s *Selector) IsAvailable(name enums.DeliveryProvider) bool {
	_, ok := s.providers[name]
	return ok
}

// Available lists the registered providers.
func (s *Selector) Available() []enums.DeliveryProvider {
	out := make([]enums.DeliveryProvider, 0, len(s.providers))
	for _, candidate := range []enums.DeliveryProvider{
		enums.DeliveryProviderShipbubble,
		enums.DeliveryProviderUberDirect,
	} {
		if _, ok := s.providers[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}

func (s *Selector) providerFor(country string) enums.DeliveryProvider {
	if strings.EqualFold(strings.TrimSpace(country), s.domesticCountry) {
		return enums.DeliveryProviderShipbubble
	}
	return enums.DeliveryProviderUberDirect
}
