// Package routes loads the YAML route table that says which gate stands in
// front of each upstream endpoint.
//
//	routes:
//	  - name: orders.create
//	    method: POST
//	    path: /orders
//	    policy: api
//	    auth: required
//	    roles: [customer]
//	    rules:
//	      - field: restaurant_id
//	        checks:
//	          - kind: uuid
//
// roles takes role names and the groups staff, admins and all. Compile
// resolves every route against the configured rate limit policies and returns
// pipeline specs ready for pipeline.Build. Default is the table shipped with
// the binary.
package routes
