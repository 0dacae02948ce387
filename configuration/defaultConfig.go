package configuration

// defaultConfig loaded anyway when service starts
// may be extended/replaced by user-provided config later
var defaultConfig = []byte(`
version: v0.0.1
system:
  log:
    console:
      level: info # available levels: debug, info, warn, error, dpanic, panic, fatal
  http:
    defaultPort: 8080
client:
  id: alarmping
  url: ws://localhost:8080/mqtt
  keepAlive: 60
  pingTimeout: 10
  cleanSession: true
  automaticReconnect: true
alarm:
  backend: auto # auto, timerfd, runtime
wakelock:
  backend: auto # auto, logind, caffeinate, none
audit:
  backend: mem # mem, sqlite
  path: /var/lib/alarmping/audit.db
  maxRows: 1000
`)
