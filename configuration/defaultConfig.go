package configuration

// defaultConfig loaded anyway when the gateway starts
// may be extended/replaced by user-provided config later
var defaultConfig = []byte(`
system:
  log:
    console:
      level: info # available levels: debug, info, warn, error, dpanic, panic, fatal
broker:
  queueDepth: 256
  keepAlive: 60
  connectTimeout: 2
  maxPacketSize: 268435455
listeners:
  defaultAddr: ""
  http: ":8080"
  mqtt:
    tcp:
      1883: {}
`)
