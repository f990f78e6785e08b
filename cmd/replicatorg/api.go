package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/magnomatos822/replicatorg/gcode"
	"github.com/magnomatos822/replicatorg/machine"
	"github.com/magnomatos822/replicatorg/port"
)

type api struct {
	http.Handler
	c       *machine.Controller
	dataDir string
	sse     *sse.Server
	log     logrus.FieldLogger

	listPorts func() ([]port.Info, error)
}

var _ machine.Listener = &api{}

func newAPI(c *machine.Controller, dir string, logger logrus.FieldLogger) *api {
	r := mux.NewRouter()
	a := &api{
		Handler: r,
		c:       c,
		dataDir: dir,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
		log:       logger,
		listPorts: port.List,
	}

	fs := http.FileServer(http.Dir(dir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET":
			fs.ServeHTTP(w, req)
		case "PUT":
			a.putFile(w, req)
		case "DELETE":
			a.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	r.HandleFunc("/api/state", a.state).Methods("GET")
	r.HandleFunc("/api/ports", a.ports).Methods("GET")
	r.HandleFunc("/api/{action:connect|disconnect|reset|pause|unpause|stop}", a.action).Methods("POST")
	r.HandleFunc("/api/{target:build|simulate|upload}", a.build).Methods("POST")
	r.HandleFunc("/api/remote", a.remote).Methods("POST")
	r.HandleFunc("/api/run", a.run).Methods("POST")

	r.PathPrefix("/events/").Handler(a.sse)
	c.AddListener(a)

	return a
}

func (a *api) Close() {
	a.c.RemoveListener(a)
	a.sse.Shutdown()
}

type stateView struct {
	machine.Status
	Machine string `json:"machine"`
	Error   string `json:"error,omitempty"`
}

func (a *api) view(st machine.Status) stateView {
	return stateView{Status: st, Machine: a.c.MachineName(), Error: st.Message()}
}

func (a *api) publish(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.WithError(err).Error("marshal event")
		return
	}
	a.sse.SendMessage(channel, sse.SimpleMessage(string(data)))
}

func (a *api) MachineStateChanged(ev machine.StateChangeEvent) {
	a.publish("/events/state", a.view(ev.Current))
}

func (a *api) MachineProgress(ev machine.ProgressEvent) {
	a.publish("/events/progress", ev)
}

func (a *api) ToolStatusChanged(ev machine.ToolStatusEvent) {
	a.publish("/events/tool", ev.Tool)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		return false, ""
	}
	dir := base
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, a.view(a.c.Status()))
}

func (a *api) ports(w http.ResponseWriter, req *http.Request) {
	list, err := a.listPorts()
	if err != nil {
		a.log.WithError(err).Error("list ports")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func (a *api) action(w http.ResponseWriter, req *http.Request) {
	var err error
	switch mux.Vars(req)["action"] {
	case "connect":
		err = a.c.Connect()
	case "disconnect":
		err = a.c.Disconnect()
	case "reset":
		err = a.c.Reset()
	case "pause":
		err = a.c.Pause()
	case "unpause":
		err = a.c.Unpause()
	case "stop":
		err = a.c.Stop()
	}
	a.accepted(w, err)
}

func (a *api) accepted(w http.ResponseWriter, err error) {
	if err != nil {
		a.log.WithError(err).Warn("request rejected")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) build(w http.ResponseWriter, req *http.Request) {
	file := req.FormValue("file")
	ok, name := safePath(a.dataDir, file)
	if !ok || file == "" {
		http.Error(w, "missing or invalid file", http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(name); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	a.c.SetSource(&gcode.FileSource{Path: name})

	var err error
	switch mux.Vars(req)["target"] {
	case "build":
		err = a.c.Execute()
	case "simulate":
		err = a.c.Simulate()
	case "upload":
		remote := req.FormValue("name")
		if remote == "" {
			remote = path.Base(file)
		}
		err = a.c.Upload(remote)
	}
	a.accepted(w, err)
}

func (a *api) remote(w http.ResponseWriter, req *http.Request) {
	name := req.FormValue("name")
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}
	a.accepted(w, a.c.BuildRemote(name))
}

// run executes the G-code lines in the body as individual commands,
// starting from the machine's last known position.
func (a *api) run(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	in := gcode.NewInterpreter()
	in.Reset(a.c.Status().Position)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cmds, err := in.Line(line)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, cmd := range cmds {
			if err := a.c.RunCommand(cmd); err != nil {
				a.accepted(w, err)
				return
			}
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	os.MkdirAll(filepath.Dir(name), 0755)
	f, err := os.Create(name)
	if err != nil {
		a.log.WithError(err).WithField("file", name).Error("create")
		http.Error(w, err.Error(), 500)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		a.log.WithError(err).WithField("file", name).Error("write")
		http.Error(w, err.Error(), 500)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if err != nil {
		a.log.WithError(err).WithField("file", name).Error("delete")
		http.Error(w, err.Error(), 500)
		return
	}
}
