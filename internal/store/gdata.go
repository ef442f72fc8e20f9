package store

import (
	"context"
	"fmt"

	"github.com/quasilyte/gdata/v2"
)

// gdata object/property layout: one object holds every key.
const gdataObject = "state"

// GdataKV stores values in the platform save-data directory via gdata, for
// desktop builds where a SQLite file is unwanted.
type GdataKV struct {
	manager *gdata.Manager
}

// OpenGdataKV opens the platform save-data store for appName.
func OpenGdataKV(appName string) (*GdataKV, error) {
	manager, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("store: open gdata: %w", err)
	}
	return &GdataKV{manager: manager}, nil
}

func (g *GdataKV) Get(_ context.Context, key string) (string, bool, error) {
	if !g.manager.ObjectPropExists(gdataObject, key) {
		return "", false, nil
	}
	data, err := g.manager.LoadObjectProp(gdataObject, key)
	if err != nil {
		return "", false, fmt.Errorf("store: gdata get %q: %w", key, err)
	}
	return string(data), true, nil
}

func (g *GdataKV) Set(_ context.Context, key, value string) error {
	if err := g.manager.SaveObjectProp(gdataObject, key, []byte(value)); err != nil {
		return fmt.Errorf("store: gdata set %q: %w", key, err)
	}
	return nil
}

func (g *GdataKV) Close() error {
	return nil
}
