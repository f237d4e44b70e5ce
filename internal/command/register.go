package command

func (d *Dispatcher) registerCommands() {
	d.commands = make(map[string]*Spec)
	d.registerConnectionCommands()
	d.registerKeyCommands()
	d.registerStringCommands()
	d.registerBitmapCommands()
	d.registerListCommands()
	d.registerHashCommands()
	d.registerSetCommands()
	d.registerZSetCommands()
	d.registerStreamCommands()
	d.registerHLLCommands()
	d.registerGeoCommands()
	d.registerTransactionCommands()
	d.registerPubSubCommands()
	d.registerPersistenceCommands()
	d.registerScriptingCommands()
	d.registerReplicationCommands()
}

func (d *Dispatcher) add(name string, arity int, isWrite bool, h Handler) {
	d.commands[name] = &Spec{Name: name, Arity: arity, IsWrite: isWrite, Handler: h}
}
