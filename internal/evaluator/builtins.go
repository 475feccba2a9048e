package evaluator

// builtinDefinitions returns fresh definitions of every builtin class.
func builtinDefinitions() []*Definition {
	defs := []*Definition{
		objectDefinition(),
		nilDefinition(),
		yesDefinition(),
		noDefinition(),
		numberDefinition(),
		complexDefinition(),
		stringDefinition(),
		symbolDefinition(),
		arrayDefinition(),
		listDefinition(),
		hashDefinition(),
		pairDefinition(),
		matrixDefinition(),
		procedureDefinition(),
		blockDefinition(),
		functionDefinition(),
		mutexDefinition(),
		futureDefinition(),
		threadDefinition(),
		conditionDefinition(),
		ioDefinition(),
		kernelDefinition(),
		storeDefinition(),
	}
	return append(defs, exceptionDefinitions()...)
}
