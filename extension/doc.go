// Package extension extracts the extension requirements a template declares.
//
// A template may open with YAML front matter terminated by a line holding
// exactly "+++":
//
//	required-extensions:
//	  std: v1
//	  kubernetes:
//	    version: v1
//	    helpers: [join_node_taints]
//	+++
//	cluster = "{{ settings.kubernetes.cluster_name }}"
//
// Parse returns the requirements sorted by name together with the template
// body. Extraction never evaluates the body. Version constraints are carried
// as written and are not interpreted. Cache memoizes Parse by content digest
// for callers rendering the same templates repeatedly.
package extension
