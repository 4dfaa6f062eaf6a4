/*
Package workflow loads graphs from YAML or JSON documents.

	name: counter
	entry: tick
	fields:
	  count: {type: int, merge: sum, default: 0}
	nodes:
	  tick:
	    step: increment
	    config: {field: count}
	    route:
	      router: threshold
	      config: {field: count, threshold: 3, above: done, below: again}
	      labels: {again: tick, done: __end__}

Field and node order follow the document.
*/
package workflow
