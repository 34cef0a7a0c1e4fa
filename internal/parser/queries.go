package parser

// Query strings below are adapted from the teacher's per-language setup
// functions, extended where spec coverage requires captures the teacher
// didn't need: C++ namespaces/templates/concepts, TS/JS interfaces/JSX
// components/decorators, Python decorators.

const goQuery = `
    (function_declaration name: (identifier) @function.name) @function
    (method_declaration
        receiver: (parameter_list) @method.receiver
        name: (field_identifier) @method.name) @method
    (type_declaration
        (type_spec name: (type_identifier) @type.name type: (struct_type))) @struct
    (type_declaration
        (type_spec name: (type_identifier) @type.name type: (interface_type))) @interface
    (type_declaration
        (type_spec name: (type_identifier) @type.name)) @type
    (package_clause (package_identifier) @package.name) @package
    (import_spec path: (interpreted_string_literal) @import.path) @import
    (call_expression function: (identifier) @call.target) @call
    (call_expression function: (selector_expression field: (field_identifier) @call.target)) @call
`

const cppQuery = `
    (function_definition declarator: (function_declarator declarator: (identifier) @function.name)) @function
    (function_definition declarator: (function_declarator declarator: (field_identifier) @method.name)) @method
    (function_definition declarator: (function_declarator declarator: (qualified_identifier
        scope: (_) @method.qualifier
        name: (identifier) @method.name))) @method
    (class_specifier name: (type_identifier) @class.name base_class_clause: (base_class_clause)? @class.bases) @class
    (struct_specifier name: (type_identifier) @struct.name base_class_clause: (base_class_clause)? @struct.bases) @struct
    (field_declaration declarator: (field_identifier) @field.name) @field
    (field_declaration declarator: (pointer_declarator declarator: (field_identifier) @field.name)) @field
    (field_declaration declarator: (array_declarator declarator: (field_identifier) @field.name)) @field
    (enum_specifier name: (type_identifier) @enum.name) @enum
    (namespace_definition name: (namespace_identifier) @namespace.name) @namespace
    (template_declaration) @template
    (concept_definition name: (identifier) @concept.name) @concept
    (preproc_include) @import
    (using_declaration) @import
    (call_expression function: (identifier) @call.target) @call
    (call_expression function: (field_expression field: (field_identifier) @call.target)) @call
`

const typescriptQuery = `
    (function_declaration name: (identifier) @function.name) @function
    (generator_function_declaration name: (identifier) @function.name) @function
    (method_definition name: (property_identifier) @method.name) @method
    (method_signature name: (property_identifier) @method.name) @method
    (public_field_definition name: (property_identifier) @field.name) @field
    (class_declaration name: (type_identifier) @class.name (class_heritage (extends_clause value: (_) @class.extends))?) @class
    (class_declaration name: (type_identifier) @class.name (class_heritage (implements_clause (type_identifier) @class.implements)))  @class
    (interface_declaration name: (type_identifier) @interface.name) @interface
    (type_alias_declaration name: (type_identifier) @type.name) @type
    (enum_declaration name: (identifier) @enum.name) @enum
    (decorator) @decorator
    (export_statement declaration: (_) @export)
    (import_statement source: (string) @import.source) @import
    (call_expression function: (identifier) @call.target) @call
    (call_expression function: (member_expression property: (property_identifier) @call.target)) @call
`

const javascriptQuery = `
    (function_declaration name: (identifier) @function.name) @function
    (generator_function_declaration name: (identifier) @function.name) @function
    (variable_declarator
        name: (identifier) @function.name
        value: [(arrow_function) (function_expression) (generator_function)]) @function
    (variable_declarator
        name: (identifier) @variable.name
        value: (_) @variable.value) @variable
    (method_definition name: (property_identifier) @method.name) @method
    (class_declaration name: (identifier) @class.name (class_heritage (extends_clause value: (_) @class.extends))?) @class
    (export_statement declaration: (_) @export)
    (import_statement source: (string) @import.source) @import
    (call_expression function: (identifier) @call.target) @call
    (call_expression function: (member_expression property: (property_identifier) @call.target)) @call
`

const pythonQuery = `
    (class_definition
        body: (block
            (function_definition name: (identifier) @method.name))) @method
    (decorated_definition
        (decorator) @decorator
        definition: (function_definition name: (identifier) @function.name)) @function
    (decorated_definition
        (decorator) @decorator
        definition: (class_definition name: (identifier) @class.name superclasses: (argument_list)? @class.bases)) @class
    (function_definition name: (identifier) @function.name) @function
    (class_definition name: (identifier) @class.name superclasses: (argument_list)? @class.bases) @class
    (import_statement) @import
    (import_from_statement) @import
    (call function: (identifier) @call.target) @call
    (call function: (attribute attribute: (identifier) @call.target)) @call
`

// The remaining five languages get a flat declaration-capture query rather
// than a fully modeled grammar: they exercise their tree-sitter binding and
// satisfy discovery/store coverage without the bespoke per-construct
// handling C++/TS/JS/Python get.

const genericJavaQuery = `
    (method_declaration name: (identifier) @method.name) @method
    (constructor_declaration name: (identifier) @constructor.name) @constructor
    (class_declaration name: (identifier) @class.name) @class
    (interface_declaration name: (identifier) @interface.name) @interface
    (enum_declaration name: (identifier) @enum.name) @enum
    (import_declaration) @import
    (package_declaration) @package
`

const genericCSharpQuery = `
    (method_declaration name: (identifier) @method.name) @method
    (constructor_declaration name: (identifier) @constructor.name) @constructor
    (class_declaration name: (identifier) @class.name) @class
    (interface_declaration name: (identifier) @interface.name) @interface
    (struct_declaration name: (identifier) @struct.name) @struct
    (enum_declaration name: (identifier) @enum.name) @enum
    (using_directive) @import
`

const genericPHPQuery = `
    (method_declaration name: (name) @method.name) @method
    (function_definition name: (name) @function.name) @function
    (class_declaration name: (name) @class.name) @class
    (interface_declaration name: (name) @interface.name) @interface
    (namespace_use_declaration) @import
`

// genericZigQuery mirrors the teacher's community-parser setup for zig
// verbatim: a flat function/struct/union capture, no nesting.
const genericZigQuery = `
    (function_declaration (identifier) @function.name) @function
    (variable_declaration
      (identifier) @struct.name
      (struct_declaration) @struct)
    (variable_declaration
      (identifier) @struct.name
      (union_declaration) @struct)
`

const genericRustQuery = `
    (impl_item
        body: (declaration_list
            (function_item name: (identifier) @method.name))) @method
    (trait_item
        body: (declaration_list
            (function_item name: (identifier) @method.name))) @method
    (function_item name: (identifier) @function.name) @function
    (struct_item name: (type_identifier) @struct.name) @struct
    (enum_item name: (type_identifier) @enum.name) @enum
    (trait_item name: (type_identifier) @interface.name) @interface
    (type_item name: (type_identifier) @type.name) @type
    (use_declaration) @import
    (mod_item name: (identifier) @module.name) @module
`
