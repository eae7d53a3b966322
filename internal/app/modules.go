package app

import (
	"io"

	"github.com/specialistvlad/eventgrid/internal/handlers"
	"github.com/specialistvlad/eventgrid/modules/blackhole"
	"github.com/specialistvlad/eventgrid/modules/dirwatch"
	"github.com/specialistvlad/eventgrid/modules/http"
	"github.com/specialistvlad/eventgrid/modules/metronome"
	"github.com/specialistvlad/eventgrid/modules/redis"
	"github.com/specialistvlad/eventgrid/modules/socketio"
	"github.com/specialistvlad/eventgrid/modules/sqlite"
	"github.com/specialistvlad/eventgrid/modules/stdout"
)

// coreModules is the definitive list of all connector modules that are
// compiled into the eventgrid binary.
func coreModules(outW io.Writer) []handlers.Module {
	return []handlers.Module{
		&metronome.Module{},
		&dirwatch.Module{},
		&redis.Module{},
		&socketio.Module{},
		&sqlite.Module{},
		&http.Module{},
		&stdout.Module{Writer: outW},
		&blackhole.Module{},
	}
}
